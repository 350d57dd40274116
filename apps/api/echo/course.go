package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/authz"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/user"
)

const (
	editDataField  = "data"
	editImageField = "image"
)

var listVaryByQueryKeys = []string{"search", "page", "order_by", "ascending"}

type courseApi struct {
	conf     *core.Config
	svc      course.ServiceInterface
	az       *authz.Authorizer
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt, optJWT, listCache echo.MiddlewareFunc, api *courseApi) {
	author := requirePolicy(api.az, authz.PolicyCourseAuthor, courseParam)
	subscriber := requirePolicy(api.az, authz.PolicyCourseSubscriber, courseParam)
	teacher := requirePolicy(api.az, authz.RolePolicy(user.RoleTeacher), noResource)
	limit := requirePolicy(api.az, authz.PolicyCourseLimit, noResource)

	cg := g.Group("/courses")
	cg.GET("", api.list, optJWT, listCache)
	cg.GET("/title-available", api.isTitleAvailable, jwt, teacher)
	cg.GET("/mine", api.listMine, jwt)
	cg.POST("", api.create, jwt, teacher, limit)

	cg.GET("/:id", api.retrieve, optJWT)
	cg.GET("/:id/edit", api.retrieveForEditing, jwt, author)
	cg.PUT("/:id", api.update, jwt, author)
	cg.DELETE("/:id", api.destroy, jwt, author)
	cg.POST("/:id/question", api.sendQuestion, jwt)
	cg.GET("/:id/pay", api.pay, jwt)
	cg.GET("/:id/subscribe", api.subscribe, jwt)
	cg.GET("/:id/vote", api.retrieveVote, jwt, subscriber)
	cg.PUT("/:id/vote", api.vote, jwt, subscriber)
}

func (api *courseApi) list(ctx echo.Context) error {
	var in course.ListInput
	if err := ctx.Bind(&in); err != nil {
		in = course.ListInput{}
	}
	in.Sanitize(api.conf.Courses())

	courses, err := api.svc.GetCourses(ctx.Request().Context(), in)
	if err != nil {
		return errors.Wrap(err, "getting courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) isTitleAvailable(ctx echo.Context) error {
	title := core.CleanString(ctx.QueryParam("title"))
	excludeID, _ := strconv.ParseInt(ctx.QueryParam("id"), 10, 64)

	available, err := api.svc.IsTitleAvailable(ctx.Request().Context(), title, excludeID)
	if err != nil {
		return errors.Wrap(err, "checking title availability")
	}
	return ctx.JSON(http.StatusOK, available)
}

func (api *courseApi) listMine(ctx echo.Context) error {
	courses, err := api.svc.GetCoursesByAuthor(ctx.Request().Context(), getPrincipal(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "getting author courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	var in course.CreateInput
	if err := ctx.Bind(&in); err != nil {
		return errors.Wrap(err, "binding to CreateInput")
	}
	if err := in.Validate(api.validate); err != nil {
		return err
	}
	p := getPrincipal(ctx)
	in.AuthorID, in.Author, in.Email = p.ID, p.FullName, p.Email

	detail, err := api.svc.CreateCourse(ctx.Request().Context(), in)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, detail)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	detail, err := api.svc.GetCourse(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	resp := CourseDetailResponse{CourseDetail: detail}

	if p := getPrincipal(ctx); p.IsAuthenticated() {
		authorID, err := api.svc.GetCourseAuthorID(ctx.Request().Context(), id)
		if err != nil {
			return errors.Wrap(err, "getting course author")
		}
		resp.IsAuthor = authorID == p.ID
		if resp.IsSubscribed, err = api.svc.IsCourseSubscribed(ctx.Request().Context(), id, p.ID); err != nil {
			return errors.Wrap(err, "checking subscription")
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *courseApi) retrieveForEditing(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	in, err := api.svc.GetCourseForEditing(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting course for editing")
	}
	return ctx.JSON(http.StatusOK, in)
}

// update accepts a JSON body, or a multipart form holding the JSON in "data" and the new picture in "image".
func (api *courseApi) update(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	var in course.EditInput
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err = json.Unmarshal([]byte(ctx.FormValue(editDataField)), &in); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: editDataField, Error: "invalid course data"})
		}
		fh, err := ctx.FormFile(editImageField)
		if err != nil && err != http.ErrMissingFile {
			return errors.Wrap(err, "reading image")
		}
		if fh != nil {
			f, err := fh.Open()
			if err != nil {
				return errors.Wrap(err, "opening image")
			}
			defer f.Close()
			in.Image = f
		}
	} else if err = ctx.Bind(&in); err != nil {
		return errors.Wrap(err, "binding to EditInput")
	}
	in.ID = id

	if err = in.Validate(api.validate); err != nil {
		return err
	}

	detail, err := api.svc.EditCourse(ctx.Request().Context(), in)
	if err != nil {
		return errors.Wrap(err, "editing course")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	if err = api.svc.DeleteCourse(ctx.Request().Context(), course.DeleteInput{ID: id}); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "The course was deleted. It may still appear in the course lists until they are refreshed.",
	})
}

func (api *courseApi) sendQuestion(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	var in course.QuestionInput
	if err = ctx.Bind(&in); err != nil {
		return errors.Wrap(err, "binding to QuestionInput")
	}
	if err = in.Validate(api.validate); err != nil {
		return err
	}
	p := getPrincipal(ctx)
	in.CourseID, in.UserName, in.UserEmail = id, p.FullName, p.Email

	if err = api.svc.SendQuestionToCourseAuthor(ctx.Request().Context(), in); err != nil {
		return errors.Wrap(err, "sending question")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Your question was sent to the course author."})
}

func (api *courseApi) pay(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	returnURL := fmt.Sprintf("%s/courses/%d/subscribe", api.conf.FrontendBaseURL, id)
	cancelURL := fmt.Sprintf("%s/courses/%d", api.conf.FrontendBaseURL, id)
	link, err := api.svc.GetPaymentURL(ctx.Request().Context(), id, getPrincipal(ctx).ID, returnURL, cancelURL)
	if err != nil {
		return errors.Wrap(err, "getting payment url")
	}
	return ctx.JSON(http.StatusOK, PaymentURLResponse{URL: link})
}

func (api *courseApi) subscribe(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	token := ctx.QueryParam("token")
	if token == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "token", Error: "this field is required"})
	}

	in, err := api.svc.CapturePayment(ctx.Request().Context(), id, getPrincipal(ctx).ID, token)
	if err != nil {
		return errors.Wrap(err, "capturing payment")
	}
	if err = api.svc.SubscribeCourse(ctx.Request().Context(), in); err != nil {
		return errors.Wrap(err, "subscribing course")
	}
	return ctx.JSON(http.StatusCreated, in)
}

func (api *courseApi) retrieveVote(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	vote, err := api.svc.GetCourseVote(ctx.Request().Context(), id, getPrincipal(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "getting vote")
	}
	return ctx.JSON(http.StatusOK, vote)
}

func (api *courseApi) vote(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	var in course.VoteInput
	if err = ctx.Bind(&in); err != nil {
		return errors.Wrap(err, "binding to VoteInput")
	}
	if err = in.Validate(api.validate); err != nil {
		return err
	}
	in.ID, in.UserID = id, getPrincipal(ctx).ID

	if err = api.svc.VoteCourse(ctx.Request().Context(), in); err != nil {
		return errors.Wrap(err, "voting course")
	}
	return ctx.JSON(http.StatusOK, course.VoteView{Vote: &in.Vote})
}

type (
	// CourseDetailResponse tells the authenticated user how they relate to the course.
	CourseDetailResponse struct {
		course.CourseDetail
		IsAuthor     bool `json:"is_author"`
		IsSubscribed bool `json:"is_subscribed"`
	}

	PaymentURLResponse struct {
		URL string `json:"url"`
	}

	HomeResponse struct {
		BestRating []course.CourseView `json:"best_rating"`
		MostRecent []course.CourseView `json:"most_recent"`
	}
)
