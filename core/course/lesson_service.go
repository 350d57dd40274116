package course

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
)

const defaultLessonOrder = 1000

type (
	LessonServiceInterface interface {
		GetLesson(ctx context.Context, id int64) (LessonDetail, error)
		CreateLesson(ctx context.Context, in LessonCreateInput) (LessonDetail, error)
		GetLessonForEditing(ctx context.Context, id int64) (LessonEditInput, error)
		EditLesson(ctx context.Context, in LessonEditInput) (LessonDetail, error)
		DeleteLesson(ctx context.Context, in LessonDeleteInput) error
	}

	LessonService struct {
		repo   Repository
		logger core.Logger
	}
)

var _ LessonServiceInterface = (*LessonService)(nil)

func NewLessonService(repo Repository, logger core.Logger) *LessonService {
	return &LessonService{repo: repo, logger: logger}
}

func (svc *LessonService) notFound(id int64, err error) error {
	if errors.Cause(err) == ErrLessonNotFound {
		svc.logger.Warn(fmt.Sprintf("lesson %d not found", id))
		return ErrLessonNotFound
	}
	return err
}

func (svc *LessonService) GetLesson(ctx context.Context, id int64) (LessonDetail, error) {
	l, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return LessonDetail{}, svc.notFound(id, err)
	}
	return NewLessonDetail(l), nil
}

func (svc *LessonService) CreateLesson(ctx context.Context, in LessonCreateInput) (LessonDetail, error) {
	if _, err := svc.repo.GetCourse(ctx, in.CourseID, false /* withLessons */); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return LessonDetail{}, ErrNotFound
		}
		return LessonDetail{}, errors.Wrap(err, "finding course")
	}

	l, err := svc.repo.CreateLesson(ctx, Lesson{
		CourseID: in.CourseID,
		Title:    in.Title,
		Order:    defaultLessonOrder,
	})
	if err != nil {
		return LessonDetail{}, errors.Wrap(err, "creating lesson")
	}
	return NewLessonDetail(l), nil
}

func (svc *LessonService) GetLessonForEditing(ctx context.Context, id int64) (LessonEditInput, error) {
	l, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return LessonEditInput{}, svc.notFound(id, err)
	}
	return NewLessonEditInput(l), nil
}

func (svc *LessonService) EditLesson(ctx context.Context, in LessonEditInput) (LessonDetail, error) {
	l, err := svc.repo.GetLesson(ctx, in.ID)
	if err != nil {
		return LessonDetail{}, svc.notFound(in.ID, err)
	}
	duration, err := ParseDuration(in.Duration)
	if err != nil {
		return LessonDetail{}, core.NewValidationError(err, core.FieldError{Field: "duration", Error: durationText})
	}

	l.Title = in.Title
	l.Description = in.Description
	l.Duration = duration
	l.Order = in.Order
	l.RowVersion = in.RowVersion

	l, err = svc.repo.UpdateLesson(ctx, l)
	if err != nil {
		switch errors.Cause(err) {
		case ErrLessonNotFound:
			return LessonDetail{}, svc.notFound(in.ID, err)
		case ErrOptimisticConcurrency:
			return LessonDetail{}, ErrOptimisticConcurrency
		}
		return LessonDetail{}, errors.Wrap(err, "updating lesson")
	}
	return NewLessonDetail(l), nil
}

func (svc *LessonService) DeleteLesson(ctx context.Context, in LessonDeleteInput) error {
	if err := svc.repo.DeleteLesson(ctx, in.ID); err != nil {
		return svc.notFound(in.ID, err)
	}
	return nil
}
