package service

import (
	"errors"
	"fmt"

	"github.com/samber/oops"

	"github.com/isometry/admanager/internal/ldap"
)

// Error kinds reported by the services. Match them with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("user not found")
	ErrTransport  = errors.New("directory unavailable")
	ErrConflict   = errors.New("entry already exists")

	// ErrNoPriorLookup is returned when a save is attempted without a
	// successful lookup to take the account identity from.
	ErrNoPriorLookup = &ValidationError{Field: "user", Reason: "no user has been looked up"}
)

// ValidationError reports a rejected input field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// classify wraps a directory error with the service error kind it maps to.
func classify(builder oops.OopsErrorBuilder, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	var kind error
	switch {
	case errors.Is(err, ErrValidation):
		return builder.Wrapf(err, format, args...)
	case ldap.IsNotFoundError(err):
		kind = ErrNotFound
	case ldap.IsConflictError(err):
		kind = ErrConflict
	case ldap.GetErrorCategory(err) == ldap.ErrorCategoryValidation:
		kind = ErrValidation
	default:
		kind = ErrTransport
	}

	return builder.
		With("error_category", string(ldap.GetErrorCategory(err))).
		Wrapf(&kindError{kind: kind, err: err}, format, args...)
}

// kindError attaches a service error kind to a directory error so that both
// remain reachable through errors.Is and errors.As.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}
