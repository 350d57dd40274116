package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// SendError is returned when a message could not be handed over to the mail transport.
type SendError struct {
	Err error
}

func NewSendError(err error) error {
	return &SendError{Err: err}
}

func (err SendError) Error() string {
	return "sending email: " + err.Err.Error()
}

func (err SendError) Unwrap() error { return err.Err }

func IsSendError(err error) bool {
	var sendErr *SendError
	return errors.As(err, &sendErr)
}
