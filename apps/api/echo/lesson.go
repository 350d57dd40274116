package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core/authz"
	"github.com/trezcool/mycourse/core/course"
)

const contextLessonKey = "lesson"

type lessonApi struct {
	svc      course.LessonServiceInterface
	az       *authz.Authorizer
	validate *validator.Validate
}

func registerLessonAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *lessonApi) {
	readers := requirePolicy(api.az, authz.PolicyCourseAuthor+","+authz.PolicyCourseSubscriber, api.lessonCourse)
	author := requirePolicy(api.az, authz.PolicyCourseAuthor, api.lessonCourse)

	lg := g.Group("/lessons", jwt)
	lg.POST("", api.create)
	lg.GET("/:id", api.retrieve, readers)
	lg.GET("/:id/edit", api.retrieveForEditing, author)
	lg.PUT("/:id", api.update, author)
	lg.DELETE("/:id", api.destroy, author)
}

// lessonCourse loads the lesson of the :id path param and returns its course.
func (api *lessonApi) lessonCourse(ctx echo.Context) (interface{}, error) {
	id, err := idParam(ctx)
	if err != nil {
		return nil, err
	}
	lesson, err := api.svc.GetLesson(ctx.Request().Context(), id)
	if err != nil {
		return nil, errors.Wrap(err, "getting lesson")
	}
	ctx.Set(contextLessonKey, lesson)
	return authz.CourseResource{CourseID: lesson.CourseID}, nil
}

func (api *lessonApi) create(ctx echo.Context) error {
	var in course.LessonCreateInput
	if err := ctx.Bind(&in); err != nil {
		return errors.Wrap(err, "binding to LessonCreateInput")
	}
	if err := in.Validate(api.validate); err != nil {
		return err
	}
	if err := authorize(ctx, api.az, authz.PolicyCourseAuthor, authz.CourseResource{CourseID: in.CourseID}); err != nil {
		return err
	}

	lesson, err := api.svc.CreateLesson(ctx.Request().Context(), in)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lesson)
}

func (api *lessonApi) retrieve(ctx echo.Context) error {
	lesson, ok := ctx.Get(contextLessonKey).(course.LessonDetail)
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *lessonApi) retrieveForEditing(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	in, err := api.svc.GetLessonForEditing(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting lesson for editing")
	}
	return ctx.JSON(http.StatusOK, in)
}

func (api *lessonApi) update(ctx echo.Context) error {
	lesson, ok := ctx.Get(contextLessonKey).(course.LessonDetail)
	if !ok {
		return errHttpNotFound
	}

	var in course.LessonEditInput
	if err := ctx.Bind(&in); err != nil {
		return errors.Wrap(err, "binding to LessonEditInput")
	}
	in.ID, in.CourseID = lesson.ID, lesson.CourseID
	if err := in.Validate(api.validate); err != nil {
		return err
	}

	updated, err := api.svc.EditLesson(ctx.Request().Context(), in)
	if err != nil {
		return errors.Wrap(err, "editing lesson")
	}
	return ctx.JSON(http.StatusOK, updated)
}

func (api *lessonApi) destroy(ctx echo.Context) error {
	lesson, ok := ctx.Get(contextLessonKey).(course.LessonDetail)
	if !ok {
		return errHttpNotFound
	}

	err := api.svc.DeleteLesson(ctx.Request().Context(), course.LessonDeleteInput{ID: lesson.ID, CourseID: lesson.CourseID})
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}
