package course

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mycourse/core"
)

// ListInput holds the course list query. Call Sanitize before use.
type ListInput struct {
	Search    string `query:"search"`
	Page      int    `query:"page"`
	OrderBy   string `query:"order_by"`
	Ascending bool   `query:"ascending"`

	Limit  int `query:"-"`
	Offset int `query:"-"`
}

// Sanitize fixes out of range values using opts.
func (in *ListInput) Sanitize(opts core.CoursesOptions) {
	in.Search = core.CleanString(in.Search)
	if in.Page < 1 {
		in.Page = 1
	}
	in.OrderBy = core.CleanString(in.OrderBy, true /* lower */)
	if !core.ContainsString(opts.Order.Allow, in.OrderBy) {
		in.OrderBy = opts.Order.By
		in.Ascending = opts.Order.Ascending
	}
	in.Limit = opts.PerPage
	in.Offset = (in.Page - 1) * opts.PerPage
}

type CreateInput struct {
	Title string `json:"title" validate:"required,min=10,max=100,title_chars"`

	// set from the authenticated user
	AuthorID string `json:"-"`
	Author   string `json:"-"`
	Email    string `json:"-"`
}

func (in *CreateInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	return validate.Struct(in)
}

type EditInput struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title" validate:"required,min=10,max=100,title_chars"`
	Description  string     `json:"description" validate:"max=4000"`
	Email        string     `json:"email" validate:"required,email"`
	FullPrice    core.Money `json:"full_price"`
	CurrentPrice core.Money `json:"current_price"`
	Status       string     `json:"status" validate:"required,oneof=draft published"`
	RowVersion   int64      `json:"row_version" validate:"required,gte=1"`
	ImagePath    string     `json:"image_path"` // read-only

	Image io.Reader `json:"-"`
}

func (in *EditInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	in.Description = core.CleanString(in.Description)
	in.Email = core.CleanString(in.Email, true /* lower */)
	in.Status = core.CleanString(in.Status, true /* lower */)
	return validate.Struct(in)
}

func NewEditInput(c Course) EditInput {
	return EditInput{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		Email:        c.Email,
		FullPrice:    c.FullPrice,
		CurrentPrice: c.CurrentPrice,
		Status:       c.Status,
		RowVersion:   c.RowVersion,
		ImagePath:    c.ImagePath,
	}
}

type DeleteInput struct {
	ID int64 `json:"id"`
}

type VoteInput struct {
	ID     int64  `json:"-"`
	UserID string `json:"-"`
	Vote   int    `json:"vote" validate:"min=1,max=5"`
}

func (in VoteInput) Validate(validate *validator.Validate) error { return validate.Struct(in) }

// PayInput is handed over to the payment gateway.
type PayInput struct {
	CourseID    int64
	UserID      string
	Description string
	Price       core.Money
	ReturnURL   string
	CancelURL   string
}

// SubscribeInput describes a captured payment.
type SubscribeInput struct {
	CourseID      int64      `json:"course_id"`
	UserID        string     `json:"user_id"`
	PaymentDate   time.Time  `json:"payment_date"`
	PaymentType   string     `json:"payment_type"`
	Paid          core.Money `json:"paid"`
	TransactionID string     `json:"transaction_id"`
}

type QuestionInput struct {
	CourseID int64  `json:"-"`
	Question string `json:"question" validate:"required,max=4000"`

	// set from the authenticated user
	UserName  string `json:"-"`
	UserEmail string `json:"-"`
}

func (in *QuestionInput) Validate(validate *validator.Validate) error {
	in.Question = core.CleanString(in.Question)
	return validate.Struct(in)
}

type LessonCreateInput struct {
	CourseID int64  `json:"course_id" validate:"required"`
	Title    string `json:"title" validate:"required,max=100,title_chars"`
}

func (in *LessonCreateInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	return validate.Struct(in)
}

type LessonEditInput struct {
	ID          int64  `json:"id"`
	CourseID    int64  `json:"course_id"` // read-only
	Title       string `json:"title" validate:"required,max=100,title_chars"`
	Description string `json:"description" validate:"max=4000"`
	Duration    string `json:"duration" validate:"required,duration"`
	Order       int    `json:"order" validate:"gte=0"`
	RowVersion  int64  `json:"row_version" validate:"required,gte=1"`
}

func (in *LessonEditInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	in.Description = core.CleanString(in.Description)
	in.Duration = core.CleanString(in.Duration)
	return validate.Struct(in)
}

func NewLessonEditInput(l Lesson) LessonEditInput {
	return LessonEditInput{
		ID:          l.ID,
		CourseID:    l.CourseID,
		Title:       l.Title,
		Description: l.Description,
		Duration:    FormatDuration(l.Duration),
		Order:       l.Order,
		RowVersion:  l.RowVersion,
	}
}

type LessonDeleteInput struct {
	ID       int64
	CourseID int64
}
