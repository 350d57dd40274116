package course

import (
	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
)

var (
	ErrNotFound              = errors.New("course not found")
	ErrLessonNotFound        = errors.New("lesson not found")
	ErrTitleUnavailable      = errors.New("this title already exists")
	ErrImageInvalid          = errors.New("the image is not valid")
	ErrOptimisticConcurrency = errors.New("the course was updated by another user in the meantime, reload and redo your changes")
	ErrAlreadySubscribed     = errors.New("you are already subscribed to this course")
	ErrNotSubscribed         = errors.New("you are not subscribed to this course")
	ErrPaymentMismatch       = errors.New("the payment does not match this course")
)

func titleUnavailableError() error {
	return core.NewValidationError(ErrTitleUnavailable, core.FieldError{Field: "title", Error: ErrTitleUnavailable.Error()})
}

func imageInvalidError() error {
	return core.NewValidationError(ErrImageInvalid, core.FieldError{Field: "image", Error: ErrImageInvalid.Error()})
}
