// Package payment defines what the course service expects from payment gateways.
package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core/course"
)

// Payment types
const (
	TypePaypal = "Paypal"
	TypeStripe = "Stripe"
)

type (
	// Gateway redirects the user to a hosted checkout and captures the payment on return.
	Gateway interface {
		GetPaymentURL(ctx context.Context, in course.PayInput) (string, error)
		// CapturePayment confirms the payment identified by token and returns the subscription to store.
		CapturePayment(ctx context.Context, token string) (course.SubscribeInput, error)
	}

	// TransactionLogger keeps an append-only record of the captured payments.
	TransactionLogger interface {
		LogTransaction(ctx context.Context, in course.SubscribeInput) error
	}
)

var (
	_ course.PaymentGateway    = (Gateway)(nil)
	_ course.TransactionLogger = (TransactionLogger)(nil)
)

// Error is returned when a gateway rejects or fails a request.
type Error struct {
	Gateway string
	Op      string
	Err     error
}

func NewError(gateway, op string, err error) error {
	return &Error{Gateway: gateway, Op: op, Err: err}
}

func (err Error) Error() string {
	return fmt.Sprintf("%s %s: %v", err.Gateway, err.Op, err.Err)
}

func (err Error) Unwrap() error { return err.Err }

func IsError(err error) bool {
	var pErr *Error
	return errors.As(err, &pErr)
}

// CustomID encodes the course and user a payment is made for, see ParseCustomID.
func CustomID(courseID int64, userID string) string {
	return fmt.Sprintf("%d/%s", courseID, userID)
}

// ParseCustomID decodes a value built with CustomID.
func ParseCustomID(s string) (courseID int64, userID string, err error) {
	id, userID, ok := strings.Cut(s, "/")
	if !ok || userID == "" {
		return 0, "", errors.Errorf("invalid custom id %q", s)
	}
	if courseID, err = strconv.ParseInt(id, 10, 64); err != nil {
		return 0, "", errors.Errorf("invalid custom id %q", s)
	}
	return courseID, userID, nil
}
