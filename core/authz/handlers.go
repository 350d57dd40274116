package authz

import (
	"context"

	"github.com/pkg/errors"
)

// CourseResource identifies the course a requirement is evaluated on.
type CourseResource struct {
	CourseID int64
}

type courseHandler struct {
	courses CourseInfo
}

func (h *courseHandler) Handle(ctx context.Context, p Principal, req Requirement, resource interface{}) (bool, error) {
	switch r := req.(type) {
	case CourseLimitRequirement:
		count, err := h.courses.GetCourseCountByAuthorID(ctx, p.ID)
		if err != nil {
			return false, errors.Wrap(err, "counting author courses")
		}
		return count < r.Limit, nil

	case CourseAuthorRequirement:
		res, ok := resource.(CourseResource)
		if !ok {
			return false, nil
		}
		return h.isAuthor(ctx, p, res.CourseID)

	case CourseSubscriberRequirement:
		res, ok := resource.(CourseResource)
		if !ok {
			return false, nil
		}
		if isAuthor, err := h.isAuthor(ctx, p, res.CourseID); err != nil || isAuthor {
			return isAuthor, err
		}
		subscribed, err := h.courses.IsCourseSubscribed(ctx, res.CourseID, p.ID)
		if err != nil {
			return false, errors.Wrap(err, "checking subscription")
		}
		return subscribed, nil
	}
	return false, nil
}

func (h *courseHandler) isAuthor(ctx context.Context, p Principal, courseID int64) (bool, error) {
	authorID, err := h.courses.GetCourseAuthorID(ctx, courseID)
	if err != nil {
		return false, err // course.ErrNotFound surfaces as 404
	}
	return authorID != "" && authorID == p.ID, nil
}
