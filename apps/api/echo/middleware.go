package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/authz"
)

const (
	headerXCache       = "X-Cache"
	headerCacheControl = "Cache-Control"
	hstsMaxAge         = 365 * 24 * 60 * 60
)

func securityHeaders(debug bool) echo.MiddlewareFunc {
	cfg := middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
	if !debug {
		cfg.HSTSMaxAge = hstsMaxAge
	}
	return middleware.SecureWithConfig(cfg)
}

// resourceFunc extracts the resource a policy is evaluated on.
type resourceFunc func(ctx echo.Context) (interface{}, error)

func noResource(echo.Context) (interface{}, error) { return nil, nil }

// courseParam reads the course from the :id path param.
func courseParam(ctx echo.Context) (interface{}, error) {
	id, err := idParam(ctx)
	if err != nil {
		return nil, err
	}
	return authz.CourseResource{CourseID: id}, nil
}

// requirePolicy lets the request through when the authenticated principal satisfies policy.
func requirePolicy(az *authz.Authorizer, policy string, resource resourceFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			res, err := resource(ctx)
			if err != nil {
				return err
			}
			if err = authorize(ctx, az, policy, res); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func authorize(ctx echo.Context, az *authz.Authorizer, policy string, resource interface{}) error {
	err := az.Authorize(ctx.Request().Context(), getPrincipal(ctx), policy, resource)
	if errors.Cause(err) == authz.ErrForbidden {
		return errHttpForbidden
	}
	return err
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// bodyRecorder copies what the handler writes.
type bodyRecorder struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func responseCacheKey(ctx echo.Context, varyBy []string) string {
	var sb strings.Builder
	sb.WriteString("Response:")
	sb.WriteString(ctx.Request().Method)
	sb.WriteString(ctx.Request().URL.Path)
	for _, key := range varyBy {
		fmt.Fprintf(&sb, "|%s=%s", key, ctx.QueryParam(key))
	}
	return sb.String()
}

// responseCache caches the successful responses of anonymous GET requests for profile.Duration.
func responseCache(cache core.Cache, profile core.ResponseCacheProfile, logger core.Logger) echo.MiddlewareFunc {
	cacheControl := "public,max-age=" + strconv.Itoa(int(profile.Duration.Seconds()))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if req.Method != http.MethodGet || req.Header.Get(echo.HeaderAuthorization) != "" || profile.Duration <= 0 {
				return next(ctx)
			}

			key := responseCacheKey(ctx, profile.VaryByQueryKeys)
			var cached cachedResponse
			found, err := cache.Get(req.Context(), key, &cached)
			if err != nil {
				logger.Warn(fmt.Sprintf("response cache get %s: %v", key, err), err)
			}
			if found {
				ctx.Response().Header().Set(headerCacheControl, cacheControl)
				ctx.Response().Header().Set(headerXCache, "HIT")
				return ctx.Blob(cached.Status, cached.ContentType, cached.Body)
			}

			rec := &bodyRecorder{ResponseWriter: ctx.Response().Writer}
			ctx.Response().Writer = rec
			ctx.Response().Header().Set(headerCacheControl, cacheControl)
			ctx.Response().Header().Set(headerXCache, "MISS")
			if err = next(ctx); err != nil {
				ctx.Response().Header().Del(headerCacheControl)
				return err
			}

			if ctx.Response().Status == http.StatusOK {
				resp := cachedResponse{
					Status:      http.StatusOK,
					ContentType: ctx.Response().Header().Get(echo.HeaderContentType),
					Body:        rec.buf.Bytes(),
				}
				if err = cache.Set(req.Context(), key, resp, profile.Duration); err != nil {
					logger.Warn(fmt.Sprintf("response cache set %s: %v", key, err), err)
				}
			}
			return nil
		}
	}
}
