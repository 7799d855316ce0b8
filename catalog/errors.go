package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed     = errors.New("malformed catalog")
	ErrMissingField  = errors.New("required field missing")
	ErrDuplicateID   = errors.New("duplicate shower ID")
	ErrInvalidRange  = errors.New("activity period out of order")
	ErrInvalidNumber = errors.New("numeric field out of range")
	ErrNilSnapshot   = errors.New("nil catalog snapshot")
)

// ParseError reports a catalog that could not be decoded, or a record with a
// missing or unreadable field. Record is empty for document-level problems.
type ParseError struct {
	Record string
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Record == "" && e.Field == "":
		return fmt.Sprintf("parse catalog: %v", e.Err)
	case e.Record == "":
		return fmt.Sprintf("parse catalog: field %q: %v", e.Field, e.Err)
	case e.Field == "":
		return fmt.Sprintf("parse catalog: shower %q: %v", e.Record, e.Err)
	default:
		return fmt.Sprintf("parse catalog: shower %q field %q: %v", e.Record, e.Field, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a record that decoded but violates a date-range or
// numeric invariant. One such record rejects the whole candidate catalog.
type ValidationError struct {
	Record string
	Period int // index into the record's activity list, -1 for record-level fields
	Field  string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Period >= 0 {
		return fmt.Sprintf("validate catalog: shower %q activity[%d] %s: %v", e.Record, e.Period, e.Field, e.Err)
	}
	return fmt.Sprintf("validate catalog: shower %q %s: %v", e.Record, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsRejected reports whether err means a candidate catalog was refused for
// its content (as opposed to an I/O failure).
func IsRejected(err error) bool {
	var pe *ParseError
	var ve *ValidationError
	return errors.As(err, &pe) || errors.As(err, &ve)
}
