package course

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
)

// Course statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusDeleted   = "deleted"
)

const DefaultImagePath = "/courses/default.png"

type Course struct {
	ID           int64
	Title        string
	Description  string
	ImagePath    string
	Author       string
	AuthorID     string
	Email        string
	Rating       float64
	FullPrice    core.Money
	CurrentPrice core.Money
	Status       string
	RowVersion   int64
	Lessons      []Lesson
}

// TotalDuration sums the duration of the loaded lessons.
func (c Course) TotalDuration() time.Duration {
	var total time.Duration
	for _, l := range c.Lessons {
		total += l.Duration
	}
	return total
}

type Lesson struct {
	ID          int64
	CourseID    int64
	Title       string
	Description string
	Duration    time.Duration
	Order       int
	RowVersion  int64
}

type Subscription struct {
	CourseID      int64
	UserID        string
	PaymentDate   time.Time // UTC
	PaymentType   string
	Paid          core.Money
	TransactionID string
	Vote          *int
}

// FormatDuration renders d as hh:mm:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// ParseDuration parses hh:mm:ss (minutes and seconds below 60).
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, errors.Errorf("invalid duration %q", s)
	}
	vals := make([]int64, 3)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 || (i > 0 && v > 59) {
			return 0, errors.Errorf("invalid duration %q", s)
		}
		vals[i] = v
	}
	return time.Duration(vals[0])*time.Hour + time.Duration(vals[1])*time.Minute + time.Duration(vals[2])*time.Second, nil
}

// QueryFilter is used by repositories to list courses.
type QueryFilter struct {
	Search        string
	AuthorID      string
	PublishedOnly bool
	OrderBy       string // title | rating | current_price | id
	Ascending     bool
	Limit         int // 0: no limit
	Offset        int
}
