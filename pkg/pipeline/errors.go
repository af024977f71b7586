package pipeline

import (
	"errors"

	"github.com/malbeclabs/genbi/pkg/profile"
)

var (
	ErrUnknownProfile = profile.ErrUnknownProfile
	ErrInvalidModelID = errors.New("invalid model id")
	ErrEmptyQuestion  = errors.New("question is empty")
	ErrNotSupported   = errors.New("question is not supported")
)

// ValidationError is returned for requests rejected before any external call.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error) error {
	return &ValidationError{Err: err}
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
