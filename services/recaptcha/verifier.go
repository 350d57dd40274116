// Package recaptcha checks reCAPTCHA response tokens against the siteverify endpoint.
package recaptcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
)

const (
	defaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	tokenField       = "recaptcha_token"
)

var errInvalid = core.NewValidationError(nil, core.FieldError{Field: tokenField, Error: "the captcha could not be verified"})

type Verifier struct {
	enabled   bool
	secret    string
	verifyURL string
	client    *http.Client
	logger    core.Logger
}

func NewVerifier(conf *core.Config, logger core.Logger) *Verifier {
	verifyURL := conf.Recaptcha.VerifyURL
	if verifyURL == "" {
		verifyURL = defaultVerifyURL
	}
	return &Verifier{
		enabled:   conf.Recaptcha.Enabled && !conf.TestMode,
		secret:    conf.Recaptcha.SecretKey,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// Verify returns a *core.ValidationError on recaptcha_token when the token is rejected.
// It always passes when the verifier is disabled.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.enabled {
		return nil
	}
	if token == "" {
		return core.NewValidationError(nil, core.FieldError{Field: tokenField, Error: "this field is required"})
	}

	form := url.Values{"secret": {v.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := v.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "verifying captcha")
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("verifying captcha: status %d", res.StatusCode)
	}

	var body struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err = json.NewDecoder(res.Body).Decode(&body); err != nil {
		return errors.Wrap(err, "decoding captcha verification")
	}
	if !body.Success {
		v.logger.Info("captcha rejected", map[string]interface{}{"error_codes": body.ErrorCodes})
		return errInvalid
	}
	return nil
}
