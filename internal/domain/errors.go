package domain

import "errors"

var (
	// ErrInvalidInput marks an out-of-range or unrecognized field value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedCurrency marks a currency the converter cannot normalize.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrMissingRequiredColumn marks a batch table lacking a required column.
	ErrMissingRequiredColumn = errors.New("missing required column")

	// ErrSessionRequired is returned when a session operation has no session id.
	ErrSessionRequired = errors.New("session id is required")
)

// ErrorKind returns the stable, machine-readable kind for a domain error.
// Unknown errors map to "internal".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingRequiredColumn):
		return "missing_required_column"
	case errors.Is(err, ErrUnsupportedCurrency):
		return "unsupported_currency"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSessionRequired):
		return "session_required"
	default:
		return "internal"
	}
}
