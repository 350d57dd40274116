// Package imagesvc stores course images on the local disk.
package imagesvc

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
)

const coursesDir = "courses"

type Persister struct {
	root    string
	width   int
	height  int
	quality int
	now     func() time.Time
}

var _ course.ImagePersister = (*Persister)(nil)

func NewPersister(conf *core.Config) *Persister {
	return &Persister{
		root:    conf.Images.Root,
		width:   conf.Images.Width,
		height:  conf.Images.Height,
		quality: conf.Images.Quality,
		now:     time.Now,
	}
}

// SaveCourseImage crops r to the configured aspect ratio, scales it and encodes it as jpeg in a temp file.
// The public path of the image is handed to save, and the file replaces the course image only when save succeeds.
// It returns course.ErrImageInvalid when r is not a gif, jpeg or png image.
func (p *Persister) SaveCourseImage(ctx context.Context, courseID int64, r io.Reader, save func(path string) error) error {
	src, _, err := image.Decode(r)
	if err != nil {
		return errors.Wrapf(course.ErrImageInvalid, "decoding: %v", err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	dst := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, centerCrop(src.Bounds(), p.width, p.height), draw.Src, nil)

	dir := filepath.Join(p.root, coursesDir)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating images directory")
	}
	name := fmt.Sprintf("%d.jpg", courseID)

	tmp, err := os.CreateTemp(dir, name+".*")
	if err != nil {
		return errors.Wrap(err, "creating image file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err = jpeg.Encode(tmp, dst, &jpeg.Options{Quality: p.quality}); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "encoding image")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "writing image")
	}

	if err = save(fmt.Sprintf("/%s/%s?v=%d", coursesDir, name, p.now().Unix())); err != nil {
		return err
	}
	return errors.Wrap(os.Rename(tmp.Name(), filepath.Join(dir, name)), "saving image")
}

// centerCrop returns the largest centered rectangle of b with the aspect ratio w:h.
func centerCrop(b image.Rectangle, w, h int) image.Rectangle {
	bw, bh := b.Dx(), b.Dy()
	if bw*h > bh*w { // too wide
		cw := bh * w / h
		x0 := b.Min.X + (bw-cw)/2
		return image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	}
	ch := bw * h / w
	y0 := b.Min.Y + (bh-ch)/2
	return image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
}
