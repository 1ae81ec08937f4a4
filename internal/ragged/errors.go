package ragged

import (
	"errors"
	"fmt"
)

// Build errors. Every failure tied to one record is wrapped in a
// *RecordError that unwraps to one of these.
var (
	ErrMissingField    = errors.New("missing field")
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrUnsupportedType = errors.New("unsupported type")
	ErrUnknownField    = errors.New("unknown field")
	ErrKindMismatch    = errors.New("kind mismatch")
	ErrInvalidArray    = errors.New("invalid ragged array")
)

// RecordError reports a failure reading or decoding one input record.
type RecordError struct {
	Index int    // position in the input sequence
	Name  string // source name
	Field string // field being decoded, if any
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record %d (%s): field %s: %v", e.Index, e.Name, e.Field, e.Err)
	}
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
