package sqlscript

import "github.com/pkg/errors"

var (
	// ErrEmptyQuery is returned when a script contains no statements.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrDisallowedOperation is returned when a statement matches the deny-list.
	ErrDisallowedOperation = errors.New("operation is not allowed")

	// ErrInvalidNamespace is returned for a namespace outside the allowed character set.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrMalformedScript is returned when the script cannot be tokenized.
	ErrMalformedScript = errors.New("malformed script")
)

// IsValidationError reports whether err was produced by pre-execution checks.
// Validation errors are never retried.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrDisallowedOperation) ||
		errors.Is(err, ErrInvalidNamespace) ||
		errors.Is(err, ErrMalformedScript)
}
