package model

import "errors"

// ErrorKind classifies fetch-cycle failures for the published state.
type ErrorKind string

const (
	// ErrNotAsked is the initial published state before any fetch cycle has
	// ever completed. It is not a real failure; the UI should show a neutral
	// loading state for it.
	ErrNotAsked ErrorKind = "not_asked"

	// ErrInvalidDate means decomposing "now" into a year/month pair failed
	// before any request was made. Should be unreachable with a valid clock,
	// but it is handled rather than panicked on.
	ErrInvalidDate ErrorKind = "invalid_date"

	// ErrInvalidData covers transport failures and undecodable responses.
	ErrInvalidData ErrorKind = "invalid_data"
)

// FetchError is the typed failure a fetch cycle produces. It carries the
// classification for the published state and, optionally, the underlying
// cause for logging.
type FetchError struct {
	Kind  ErrorKind
	Cause error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// NewFetchError wraps cause with a kind.
func NewFetchError(kind ErrorKind, cause error) *FetchError {
	return &FetchError{Kind: kind, Cause: cause}
}

// KindOf extracts the ErrorKind from err. Errors that are not FetchErrors
// are classified as invalid data, the catch-all for a broken cycle.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ErrInvalidData
}
