package imagesvc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mycourse/core/course"
)

func newTestPersister(t *testing.T) *Persister {
	return &Persister{
		root:    t.TempDir(),
		width:   300,
		height:  300,
		quality: 70,
		now:     func() time.Time { return time.Unix(1600000000, 0) },
	}
}

func TestPersister_SaveCourseImage(t *testing.T) {
	p := newTestPersister(t)

	src := image.NewRGBA(image.Rect(0, 0, 800, 400))
	for x := 0; x < 800; x++ {
		for y := 0; y < 400; y++ {
			src.Set(x, y, color.RGBA{R: uint8(x % 256), G: 128, B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	var path string
	err := p.SaveCourseImage(context.Background(), 7, &buf, func(p string) error {
		path = p
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/courses/7.jpg?v=1600000000", path)

	f, err := os.Open(filepath.Join(p.root, "courses", "7.jpg"))
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 300, 300), img.Bounds())

	entries, err := os.ReadDir(filepath.Join(p.root, "courses"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPersister_SaveCourseImage_Rejected(t *testing.T) {
	p := newTestPersister(t)
	dir := filepath.Join(p.root, "courses")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	old := []byte("previous image")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7.jpg"), old, 0o644))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))))
	err := p.SaveCourseImage(context.Background(), 7, &buf, func(string) error {
		return course.ErrOptimisticConcurrency
	})
	assert.Equal(t, course.ErrOptimisticConcurrency, err)

	got, err := os.ReadFile(filepath.Join(dir, "7.jpg"))
	require.NoError(t, err)
	assert.Equal(t, old, got)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is removed")
}

func TestPersister_InvalidImage(t *testing.T) {
	p := newTestPersister(t)
	called := false
	err := p.SaveCourseImage(context.Background(), 7, strings.NewReader("not an image"), func(string) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, course.ErrImageInvalid))
	assert.False(t, called)
}

func TestCenterCrop(t *testing.T) {
	tests := []struct {
		name string
		b    image.Rectangle
		want image.Rectangle
	}{
		{name: "wide", b: image.Rect(0, 0, 800, 400), want: image.Rect(200, 0, 600, 400)},
		{name: "tall", b: image.Rect(0, 0, 300, 900), want: image.Rect(0, 300, 300, 600)},
		{name: "square", b: image.Rect(0, 0, 50, 50), want: image.Rect(0, 0, 50, 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, centerCrop(tt.b, 300, 300))
		})
	}
}
