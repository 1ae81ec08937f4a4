// Package schema declares the fixed field table of the consolidated
// drifter archive.
package schema

import (
	"errors"
	"fmt"
	"math"
)

// Dim is the logical dimension a field is laid out along.
type Dim int

const (
	Trajectory  Dim = iota // one value per trajectory
	Observation            // one value per observation
)

func (d Dim) String() string {
	switch d {
	case Trajectory:
		return "traj"
	case Observation:
		return "obs"
	default:
		return "unknown"
	}
}

// Kind is the element type of a field's flat buffer.
type Kind int

const (
	Bool Kind = iota
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Time // int64 seconds since the Unix epoch, NaT = math.MinInt64
	String
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Time:
		return "time"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Decode selects how a field's value is obtained from a record.
type Decode int

const (
	// Copy converts a variable's values to the field kind.
	Copy Decode = iota
	// FillValue copies a float variable and rewrites sentinel or
	// non-finite values to NaN.
	FillValue
	// Epoch decodes a seconds-since-epoch variable, mapping the sentinel
	// and non-finite values to NaT.
	Epoch
	// Truncate reads text (variable or attribute) cut to Width runes.
	Truncate
	// Numeric parses an attribute holding a number with a fixed-width
	// unit suffix of SuffixWidth characters, falling back to Fallback.
	Numeric
	// LocationType is false for an "Argos" attribute and true otherwise.
	LocationType
	// RowSize is the record's observation count.
	RowSize
	// RepeatID repeats the trajectory ID across its observations.
	RepeatID
	// DroguePresence derives per-observation drogue attachment from the
	// drogue-loss date and observation times.
	DroguePresence
)

// Origin reports where a decoded field reads its input from.
type Origin int

const (
	Derived Origin = iota
	Variable
	Attribute
)

// Field describes one named field of the archive.
type Field struct {
	Name   string
	Source string // input variable or attribute name
	Origin Origin
	Dim    Dim
	Kind   Kind
	Decode Decode

	Width       int     // max runes for Truncate
	SuffixWidth int     // unit suffix characters stripped before parsing
	Fallback    float64 // value used when Numeric parsing fails

	LongName     string
	Units        string
	Comments     string
	FlagValues   string
	FlagMeanings string
}

// Attrs returns the descriptive attributes attached to the field on output.
func (f *Field) Attrs() map[string]string {
	attrs := make(map[string]string, 5)
	if f.LongName != "" {
		attrs["long_name"] = f.LongName
	}
	if f.Units != "" {
		attrs["units"] = f.Units
	}
	if f.Comments != "" {
		attrs["comments"] = f.Comments
	}
	if f.FlagValues != "" {
		attrs["flag_values"] = f.FlagValues
	}
	if f.FlagMeanings != "" {
		attrs["flag_meanings"] = f.FlagMeanings
	}
	return attrs
}

// Schema is an ordered, validated set of fields.
type Schema struct {
	fields []Field
	byName map[string]int
}

// Schema validation errors.
var (
	ErrDuplicateField = errors.New("duplicate field")
	ErrInvalidField   = errors.New("invalid field")
)

// New validates fields and returns a schema preserving their order.
func New(fields []Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)
	for i := range s.fields {
		f := &s.fields[i]
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		if err := validate(f); err != nil {
			return nil, err
		}
		s.byName[f.Name] = i
	}
	return s, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew(fields []Field) *Schema {
	s, err := New(fields)
	if err != nil {
		panic(err)
	}
	return s
}

func validate(f *Field) error {
	bad := func(reason string) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidField, f.Name, reason)
	}
	if f.Name == "" {
		return bad("empty name")
	}
	if f.Origin != Derived && f.Source == "" {
		return bad("missing source")
	}
	switch f.Decode {
	case Copy:
		if f.Origin != Variable {
			return bad("copy requires a variable source")
		}
		if f.Kind == Time {
			return bad("time fields must use epoch decoding")
		}
	case FillValue:
		if f.Origin != Variable || (f.Kind != Float32 && f.Kind != Float64) {
			return bad("fill value rewriting requires a float variable")
		}
	case Epoch:
		if f.Origin != Variable || f.Kind != Time {
			return bad("epoch decoding requires a time variable")
		}
	case Truncate:
		if f.Kind != String || f.Width <= 0 {
			return bad("truncation requires a string kind and positive width")
		}
	case Numeric:
		if f.Origin != Attribute || f.Dim != Trajectory {
			return bad("numeric text requires a trajectory attribute")
		}
		if f.Kind == String || f.Kind == Time || f.SuffixWidth < 0 {
			return bad("numeric text requires a numeric kind")
		}
		if math.IsNaN(f.Fallback) && f.Kind != Float32 && f.Kind != Float64 {
			return bad("NaN fallback requires a float kind")
		}
	case LocationType:
		if f.Origin != Attribute || f.Kind != Bool || f.Dim != Trajectory {
			return bad("location type requires a boolean trajectory attribute")
		}
	case RowSize:
		if f.Kind != Int64 || f.Dim != Trajectory {
			return bad("rowsize must be an int64 trajectory field")
		}
	case RepeatID:
		if f.Kind != Int64 || f.Dim != Observation {
			return bad("ids must be an int64 observation field")
		}
	case DroguePresence:
		if f.Kind != Bool || f.Dim != Observation {
			return bad("drogue presence must be a boolean observation field")
		}
	default:
		return bad("unknown decode")
	}
	return nil
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []Field {
	return s.fields
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Lookup returns the named field.
func (s *Schema) Lookup(name string) (*Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &s.fields[i], true
}

// Dim returns the fields laid out along d, in declaration order.
func (s *Schema) Dim(d Dim) []*Field {
	var out []*Field
	for i := range s.fields {
		if s.fields[i].Dim == d {
			out = append(out, &s.fields[i])
		}
	}
	return out
}

// Required returns the input variable names every record must provide.
func (s *Schema) Required() []string {
	seen := make(map[string]bool)
	var names []string
	for i := range s.fields {
		f := &s.fields[i]
		if f.Origin != Variable || seen[f.Source] {
			continue
		}
		seen[f.Source] = true
		names = append(names, f.Source)
	}
	return names
}
