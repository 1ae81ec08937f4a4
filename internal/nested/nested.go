// Package nested exposes a ragged array as one variable-length sequence
// of observations per trajectory.
package nested

import (
	"fmt"
	"sync"

	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/schema"
)

// Lists is an offset-indexed view of one observation field. At(i)
// returns the observations of trajectory i and Flatten returns every
// observation in trajectory order.
type Lists[T any] interface {
	Len() int
	At(i int) []T
	Flatten() []T
}

// Backing selects how observation fields are exposed.
type Backing int

const (
	// ZeroCopy slices the flat buffers using the ragged index.
	ZeroCopy Backing = iota
	// Materialized copies every trajectory into its own slice.
	Materialized
)

func (b Backing) String() string {
	if b == Materialized {
		return "materialized"
	}
	return "zero-copy"
}

// sliceLists overlays the ragged index on a flat buffer.
type sliceLists[T any] struct {
	values []T
	index  []int64
}

func (l *sliceLists[T]) Len() int { return len(l.index) - 1 }

func (l *sliceLists[T]) At(i int) []T {
	lo, hi := l.index[i], l.index[i+1]
	return l.values[lo:hi:hi]
}

func (l *sliceLists[T]) Flatten() []T { return l.values }

// copiedLists holds one owned slice per trajectory.
type copiedLists[T any] struct {
	rows [][]T
}

func (l *copiedLists[T]) Len() int     { return len(l.rows) }
func (l *copiedLists[T]) At(i int) []T { return l.rows[i] }

func (l *copiedLists[T]) Flatten() []T {
	n := 0
	for _, r := range l.rows {
		n += len(r)
	}
	out := make([]T, 0, n)
	for _, r := range l.rows {
		out = append(out, r...)
	}
	return out
}

func materialize[T any](values []T, index []int64) *copiedLists[T] {
	rows := make([][]T, len(index)-1)
	for i := range rows {
		rows[i] = append([]T(nil), values[index[i]:index[i+1]]...)
	}
	return &copiedLists[T]{rows: rows}
}

// View is a read-only nested view of a ragged array.
type View struct {
	array   *ragged.Array
	backing Backing

	idsOnce sync.Once
	byID    map[int64]int
	idsErr  error
}

// New checks the array layout and wraps it.
func New(a *ragged.Array, backing Backing) (*View, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &View{array: a, backing: backing}, nil
}

// Array returns the underlying ragged array.
func (v *View) Array() *ragged.Array { return v.array }

// Backing returns how observation fields are exposed.
func (v *View) Backing() Backing { return v.backing }

// Len returns the number of trajectories.
func (v *View) Len() int { return v.array.NumTrajectories() }

// Index returns the shared trajectory offsets.
func (v *View) Index() []int64 { return v.array.Index() }

func (v *View) column(name string, dim schema.Dim) (ragged.Column, error) {
	col, err := v.array.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Field().Dim != dim {
		return nil, fmt.Errorf("%w: %s is a %s field", ragged.ErrKindMismatch, name, col.Field().Dim)
	}
	return col, nil
}

// Trajectory returns a per-trajectory field unchanged.
func Trajectory[T ragged.Element](v *View, name string) ([]T, error) {
	if _, err := v.column(name, schema.Trajectory); err != nil {
		return nil, err
	}
	return ragged.Get[T](v.array, name)
}

// Observations returns a per-observation field grouped by trajectory.
func Observations[T ragged.Element](v *View, name string) (Lists[T], error) {
	if _, err := v.column(name, schema.Observation); err != nil {
		return nil, err
	}
	values, err := ragged.Get[T](v.array, name)
	if err != nil {
		return nil, err
	}
	if v.backing == Materialized {
		return materialize(values, v.array.Index()), nil
	}
	return &sliceLists[T]{values: values, index: v.array.Index()}, nil
}

// Flatten returns a per-observation field as one flat sequence.
func Flatten[T ragged.Element](v *View, name string) ([]T, error) {
	l, err := Observations[T](v, name)
	if err != nil {
		return nil, err
	}
	return l.Flatten(), nil
}

// Row returns every field of trajectory i. Trajectory fields map to
// their scalar value and observation fields to the typed slice of that
// trajectory's observations.
func (v *View) Row(i int) (map[string]any, error) {
	if i < 0 || i >= v.Len() {
		return nil, fmt.Errorf("trajectory %d out of range [0, %d)", i, v.Len())
	}
	lo, hi := v.array.Bounds(i)
	row := make(map[string]any, len(v.array.Columns()))
	for _, col := range v.array.Columns() {
		if col.Field().Dim == schema.Trajectory {
			row[col.Field().Name] = col.At(i)
			continue
		}
		obs := col.Range(lo, hi)
		if v.backing == Materialized {
			obs = cloneSlice(obs)
		}
		row[col.Field().Name] = obs
	}
	return row, nil
}

func cloneSlice(v any) any {
	switch s := v.(type) {
	case []bool:
		return append([]bool(nil), s...)
	case []int8:
		return append([]int8(nil), s...)
	case []int16:
		return append([]int16(nil), s...)
	case []int32:
		return append([]int32(nil), s...)
	case []int64:
		return append([]int64(nil), s...)
	case []float32:
		return append([]float32(nil), s...)
	case []float64:
		return append([]float64(nil), s...)
	case []string:
		return append([]string(nil), s...)
	default:
		return v
	}
}

// Lookup returns the position of the trajectory with the given ID. The
// ID table is built on first use.
func (v *View) Lookup(id int64) (int, bool, error) {
	v.idsOnce.Do(func() {
		ids, err := Trajectory[int64](v, schema.IDField)
		if err != nil {
			v.idsErr = err
			return
		}
		v.byID = make(map[int64]int, len(ids))
		for i, x := range ids {
			if _, dup := v.byID[x]; !dup {
				v.byID[x] = i
			}
		}
	})
	if v.idsErr != nil {
		return 0, false, v.idsErr
	}
	i, ok := v.byID[id]
	return i, ok, nil
}
