package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/authz"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/payment"
	"github.com/trezcool/mycourse/core/user"
)

const (
	sendErrorText    = "could not send the message, try again later"
	paymentErrorText = "the payment could not be processed, try again later"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errLockedOut            = echo.NewHTTPError(http.StatusBadRequest, user.ErrLockedOut.Error())
	errEmailNotConfirmed    = echo.NewHTTPError(http.StatusForbidden, user.ErrEmailNotConfirmed.Error())
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// sentinelStatus returns the HTTP status of a domain sentinel error. Their text is sent as is.
func sentinelStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, course.ErrNotFound), errors.Is(err, course.ErrLessonNotFound), errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, course.ErrOptimisticConcurrency):
		return http.StatusConflict, true
	case errors.Is(err, course.ErrAlreadySubscribed), errors.Is(err, user.ErrUnknown):
		return http.StatusBadRequest, true
	case errors.Is(err, course.ErrNotSubscribed), errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.SendError:
			code = http.StatusInternalServerError
			message = sendErrorText
			logger.Error(sendErrorText, err, contextUser(ctx))
		case *payment.Error:
			code = http.StatusBadGateway
			message = paymentErrorText
			logger.Error(paymentErrorText, err, contextUser(ctx))
		default:
			if status, ok := sentinelStatus(origErr); ok {
				code = status
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextUser(ctx))
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// contextUser rebuilds the acting user from the token claims, for the error reports.
func contextUser(ctx echo.Context) user.User {
	var usr user.User
	if claims, err := getContextClaims(ctx); err == nil {
		usr.ID = claims.Subject
		usr.FullName = claims.FullName
		usr.Email = claims.Email
	}
	return usr
}
