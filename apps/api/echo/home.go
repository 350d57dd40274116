package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/mycourse/core/course"
)

type homeApi struct {
	svc course.ServiceInterface
}

func (api *homeApi) home(ctx echo.Context) error {
	var resp HomeResponse
	g, gctx := errgroup.WithContext(ctx.Request().Context())
	g.Go(func() (err error) {
		resp.BestRating, err = api.svc.GetBestRatingCourses(gctx)
		return errors.Wrap(err, "getting best rating courses")
	})
	g.Go(func() (err error) {
		resp.MostRecent, err = api.svc.GetMostRecentCourses(gctx)
		return errors.Wrap(err, "getting most recent courses")
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}
