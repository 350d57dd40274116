package echoapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/mycourse/core/authz"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/user"
	"github.com/trezcool/mycourse/tests"
)

// multiError is not comparable.
type multiError struct {
	errs []error
}

func (e multiError) Error() string { return fmt.Sprintf("%d errors", len(e.errs)) }

func Test_newAppHTTPErrorHandler(t *testing.T) {
	conf := testutil.AppConfig()
	handle := newAppHTTPErrorHandler(testutil.Logger(t, conf), nil)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "not found", err: course.ErrNotFound, wantCode: http.StatusNotFound, wantBody: course.ErrNotFound.Error()},
		{
			name: "wrapped not found", err: errors.Wrap(user.ErrNotFound, "getting user"),
			wantCode: http.StatusNotFound, wantBody: user.ErrNotFound.Error(),
		},
		{
			name: "std wrapped conflict", err: fmt.Errorf("updating: %w", course.ErrOptimisticConcurrency),
			wantCode: http.StatusConflict,
		},
		{name: "forbidden", err: authz.ErrForbidden, wantCode: http.StatusForbidden, wantBody: authz.ErrForbidden.Error()},
		{name: "already subscribed", err: course.ErrAlreadySubscribed, wantCode: http.StatusBadRequest},
		{
			name: "unhashable", err: multiError{errs: []error{errors.New("a"), errors.New("b")}},
			wantCode: http.StatusInternalServerError, wantBody: http.StatusText(http.StatusInternalServerError),
		},
		{name: "http error", err: echo.NewHTTPError(http.StatusTeapot, "tea"), wantCode: http.StatusTeapot, wantBody: "tea"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			assert.NotPanics(t, func() { handle(tt.err, ctx) })
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}
