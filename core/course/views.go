package course

import "github.com/trezcool/mycourse/core"

type (
	CourseView struct {
		ID           int64      `json:"id"`
		Title        string     `json:"title"`
		ImagePath    string     `json:"image_path"`
		Author       string     `json:"author"`
		Rating       float64    `json:"rating"`
		FullPrice    core.Money `json:"full_price"`
		CurrentPrice core.Money `json:"current_price"`
	}

	CourseDetail struct {
		CourseView
		Description   string       `json:"description"`
		Lessons       []LessonView `json:"lessons"`
		TotalDuration string       `json:"total_duration"`
	}

	CourseList struct {
		Courses    []CourseView `json:"courses"`
		TotalCount int          `json:"total_count"`
	}

	LessonView struct {
		ID       int64  `json:"id"`
		Title    string `json:"title"`
		Duration string `json:"duration"`
	}

	LessonDetail struct {
		ID          int64  `json:"id"`
		CourseID    int64  `json:"course_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Duration    string `json:"duration"`
	}

	// VoteView is the vote of a subscriber, nil when they did not vote yet.
	VoteView struct {
		Vote *int `json:"vote"`
	}
)

func NewCourseView(c Course) CourseView {
	return CourseView{
		ID:           c.ID,
		Title:        c.Title,
		ImagePath:    c.ImagePath,
		Author:       c.Author,
		Rating:       c.Rating,
		FullPrice:    c.FullPrice,
		CurrentPrice: c.CurrentPrice,
	}
}

func NewCourseViews(courses []Course) []CourseView {
	views := make([]CourseView, 0, len(courses))
	for _, c := range courses {
		views = append(views, NewCourseView(c))
	}
	return views
}

func NewCourseDetail(c Course) CourseDetail {
	lessons := make([]LessonView, 0, len(c.Lessons))
	for _, l := range c.Lessons {
		lessons = append(lessons, NewLessonView(l))
	}
	return CourseDetail{
		CourseView:    NewCourseView(c),
		Description:   c.Description,
		Lessons:       lessons,
		TotalDuration: FormatDuration(c.TotalDuration()),
	}
}

func NewLessonView(l Lesson) LessonView {
	return LessonView{ID: l.ID, Title: l.Title, Duration: FormatDuration(l.Duration)}
}

func NewLessonDetail(l Lesson) LessonDetail {
	return LessonDetail{
		ID:          l.ID,
		CourseID:    l.CourseID,
		Title:       l.Title,
		Description: l.Description,
		Duration:    FormatDuration(l.Duration),
	}
}
