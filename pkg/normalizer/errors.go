package normalizer

import (
	"errors"
	"fmt"
)

// ErrMalformedSource indicates the raw finding is missing one of the
// required fields (id, time, account, region, kind) and cannot be turned
// into a canonical Event. Terminal: the caller routes it straight to the
// DLQ rather than retrying.
var ErrMalformedSource = errors.New("malformed source finding")

// MalformedSourceError reports which required field could not be extracted.
type MalformedSourceError struct {
	Source string
	Field  string
}

func (e *MalformedSourceError) Error() string {
	return fmt.Sprintf("source %q: missing or invalid required field %q", e.Source, e.Field)
}

func (e *MalformedSourceError) Unwrap() error {
	return ErrMalformedSource
}

func newMalformedSourceError(source, field string) error {
	return &MalformedSourceError{Source: source, Field: field}
}
