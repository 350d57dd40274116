package recaptcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mycourse/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newVerifier(t *testing.T, enabled bool, h http.HandlerFunc) *Verifier {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conf := &core.Config{}
	conf.Recaptcha.Enabled = enabled
	conf.Recaptcha.SecretKey = "s3cret"
	conf.Recaptcha.VerifyURL = srv.URL
	return NewVerifier(conf, nopLogger{})
}

func TestVerifier_Verify(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "s3cret", r.PostForm.Get("secret"))
		if r.PostForm.Get("response") == "good" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}

	tests := []struct {
		name    string
		enabled bool
		token   string
		wantErr bool
	}{
		{name: "disabled", enabled: false, token: "", wantErr: false},
		{name: "valid", enabled: true, token: "good", wantErr: false},
		{name: "rejected", enabled: true, token: "bad", wantErr: true},
		{name: "missing", enabled: true, token: "", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			v := newVerifier(t, tc.enabled, h)
			err := v.Verify(context.Background(), tc.token, "127.0.0.1")
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, "recaptcha_token", vErr.Fields[0].Field)
		})
	}
}

func TestVerifier_ServerError(t *testing.T) {
	v := newVerifier(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := v.Verify(context.Background(), "good", "")
	require.Error(t, err)
	var vErr *core.ValidationError
	assert.NotErrorAs(t, err, &vErr)
}
