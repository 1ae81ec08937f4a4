package ragged

import (
	"fmt"
	"math"
	"reflect"

	"github.com/basekick-labs/drift/internal/schema"
)

// Element is the set of Go types backing a column.
type Element interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64 | ~string
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Column is one flat field buffer of an Array.
type Column interface {
	Field() *schema.Field
	Len() int
	// Values returns the typed backing slice ([]float32, []int64, ...).
	Values() any
	// Range returns the typed sub-slice [lo, hi) sharing the backing slice.
	Range(lo, hi int) any
	// At returns element i.
	At(i int) any
}

// Values is a Column backed by a []T.
type Values[T Element] struct {
	field *schema.Field
	data  []T
}

func (c *Values[T]) Field() *schema.Field { return c.field }
func (c *Values[T]) Len() int             { return len(c.data) }
func (c *Values[T]) Values() any          { return c.data }
func (c *Values[T]) Range(lo, hi int) any { return c.data[lo:hi:hi] }
func (c *Values[T]) At(i int) any         { return c.data[i] }

// Data returns the backing slice.
func (c *Values[T]) Data() []T { return c.data }

func newValues[T Element](f *schema.Field, n int) *Values[T] {
	return &Values[T]{field: f, data: make([]T, n)}
}

// newColumn allocates a zeroed column of n elements for f.
func newColumn(f *schema.Field, n int) (Column, error) {
	switch f.Kind {
	case schema.Bool:
		return newValues[bool](f, n), nil
	case schema.Int8:
		return newValues[int8](f, n), nil
	case schema.Int16:
		return newValues[int16](f, n), nil
	case schema.Int32:
		return newValues[int32](f, n), nil
	case schema.Int64, schema.Time:
		return newValues[int64](f, n), nil
	case schema.Float32:
		return newValues[float32](f, n), nil
	case schema.Float64:
		return newValues[float64](f, n), nil
	case schema.String:
		return newValues[string](f, n), nil
	default:
		return nil, fmt.Errorf("%w: %s has kind %s", ErrUnsupportedType, f.Name, f.Kind)
	}
}

// valueLen returns the number of elements in a record value.
func valueLen(v any) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len()
	case reflect.Invalid:
		return 0
	default:
		return 1
	}
}

// convertInto converts a flat numeric record value into dst. The value
// must hold exactly len(dst) elements.
func convertInto[T number](dst []T, v any) error {
	switch src := v.(type) {
	case []float32:
		return copyNumbers(dst, src)
	case []float64:
		return copyNumbers(dst, src)
	case []int8:
		return copyNumbers(dst, src)
	case []int16:
		return copyNumbers(dst, src)
	case []int32:
		return copyNumbers(dst, src)
	case []int64:
		return copyNumbers(dst, src)
	case []uint8:
		return copyNumbers(dst, src)
	case []uint16:
		return copyNumbers(dst, src)
	case []uint32:
		return copyNumbers(dst, src)
	case []uint64:
		return copyNumbers(dst, src)
	case float32:
		return copyNumbers(dst, []float32{src})
	case float64:
		return copyNumbers(dst, []float64{src})
	case int8:
		return copyNumbers(dst, []int8{src})
	case int16:
		return copyNumbers(dst, []int16{src})
	case int32:
		return copyNumbers(dst, []int32{src})
	case int64:
		return copyNumbers(dst, []int64{src})
	case uint8:
		return copyNumbers(dst, []uint8{src})
	case uint16:
		return copyNumbers(dst, []uint16{src})
	case uint32:
		return copyNumbers(dst, []uint32{src})
	case uint64:
		return copyNumbers(dst, []uint64{src})
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func copyNumbers[T, S number](dst []T, src []S) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: got %d values, want %d", ErrShapeMismatch, len(src), len(dst))
	}
	for i, x := range src {
		dst[i] = T(x)
	}
	return nil
}

// toSlice converts a numeric record value into a new []T.
func toSlice[T number](v any) ([]T, error) {
	out := make([]T, valueLen(v))
	if err := convertInto(out, v); err != nil {
		return nil, err
	}
	return out, nil
}

// scalar returns the first element of a trajectory variable.
func scalar[T number](v any) (T, error) {
	vals, err := toSlice[T](v)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: empty trajectory value", ErrShapeMismatch)
	}
	return vals[0], nil
}

// text returns the first string of a character variable.
func text(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []string:
		if len(s) == 0 {
			return "", fmt.Errorf("%w: empty text value", ErrShapeMismatch)
		}
		return s[0], nil
	case []byte:
		return string(trimNul(s)), nil
	default:
		return "", fmt.Errorf("%w: %T is not text", ErrUnsupportedType, v)
	}
}

func trimNul(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// setNumber stores a parsed value into slot i of a numeric or boolean
// column.
func setNumber(col Column, i int, v float64) error {
	switch c := col.(type) {
	case *Values[bool]:
		c.data[i] = v != 0 && !math.IsNaN(v)
	case *Values[int8]:
		c.data[i] = int8(v)
	case *Values[int16]:
		c.data[i] = int16(v)
	case *Values[int32]:
		c.data[i] = int32(v)
	case *Values[int64]:
		c.data[i] = int64(v)
	case *Values[float32]:
		c.data[i] = float32(v)
	case *Values[float64]:
		c.data[i] = v
	default:
		return fmt.Errorf("%w: %s is not numeric", ErrUnsupportedType, col.Field().Name)
	}
	return nil
}

// assign converts a record value into the range [lo, hi) of col.
func assign(col Column, lo, hi int, v any) error {
	switch c := col.(type) {
	case *Values[int8]:
		return convertInto(c.data[lo:hi], v)
	case *Values[int16]:
		return convertInto(c.data[lo:hi], v)
	case *Values[int32]:
		return convertInto(c.data[lo:hi], v)
	case *Values[int64]:
		return convertInto(c.data[lo:hi], v)
	case *Values[float32]:
		return convertInto(c.data[lo:hi], v)
	case *Values[float64]:
		return convertInto(c.data[lo:hi], v)
	case *Values[bool]:
		tmp := make([]int8, hi-lo)
		if err := convertInto(tmp, v); err != nil {
			return err
		}
		for i, x := range tmp {
			c.data[lo+i] = x != 0
		}
		return nil
	default:
		return fmt.Errorf("%w: cannot copy into %s", ErrUnsupportedType, col.Field().Name)
	}
}

// assignFirst stores the first element of a trajectory variable in slot i.
func assignFirst(col Column, i int, v any) (err error) {
	switch c := col.(type) {
	case *Values[int8]:
		c.data[i], err = scalar[int8](v)
	case *Values[int16]:
		c.data[i], err = scalar[int16](v)
	case *Values[int32]:
		c.data[i], err = scalar[int32](v)
	case *Values[int64]:
		c.data[i], err = scalar[int64](v)
	case *Values[float32]:
		c.data[i], err = scalar[float32](v)
	case *Values[float64]:
		c.data[i], err = scalar[float64](v)
	case *Values[bool]:
		var x int8
		x, err = scalar[int8](v)
		c.data[i] = x != 0
	default:
		err = fmt.Errorf("%w: cannot copy into %s", ErrUnsupportedType, col.Field().Name)
	}
	return err
}
