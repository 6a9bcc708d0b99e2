package model

import "errors"

// Error kinds. Concrete errors wrap one of these so that the protocol layer
// can decide what to report with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrCapacity          = errors.New("capacity exceeded")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// FieldError reports a single rejected field of a request.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Reason
}
