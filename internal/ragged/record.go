package ragged

import "context"

// Record is one opened single-trajectory input.
type Record interface {
	// Len returns the length of the observation dimension without
	// loading the observation fields.
	Len() (int, error)
	// Var returns a variable's values as a flat slice, or a scalar for a
	// one-element variable. Missing variables yield ErrMissingField.
	Var(name string) (any, error)
	// Attr returns a global text attribute.
	Attr(name string) (string, bool)
	// Has reports whether the variable exists.
	Has(name string) bool
	Close() error
}

// Source resolves to a Record. Sources are opened once per pass.
type Source interface {
	Name() string
	Open(ctx context.Context) (Record, error)
}
