package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core/user"
)

type adminApi struct {
	svc      user.ServiceInterface
	validate *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt, adminOnly echo.MiddlewareFunc, api *adminApi) {
	ag := g.Group("/admin", jwt, adminOnly)
	ag.GET("/users", api.queryUsers)
	ag.GET("/roles", api.queryRoles)
	ag.POST("/roles/assign", api.assignRole)
	ag.POST("/roles/revoke", api.revokeRole)
}

func (api *adminApi) queryUsers(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.AllRoles)
}

func (api *adminApi) assignRole(ctx echo.Context) error {
	return api.changeRole(ctx, api.svc.AssignRole)
}

func (api *adminApi) revokeRole(ctx echo.Context) error {
	return api.changeRole(ctx, api.svc.RevokeRole)
}

func (api *adminApi) changeRole(ctx echo.Context, change func(ctx context.Context, ra user.RoleAssignment) (user.User, error)) error {
	var data user.RoleAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := change(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "changing role")
	}
	return ctx.JSON(http.StatusOK, usr)
}
