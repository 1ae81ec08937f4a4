package ragged

import (
	"fmt"

	"github.com/basekick-labs/drift/internal/schema"
)

// Array is a contiguous ragged array. Trajectory i owns observations
// [Index()[i], Index()[i+1]) of every observation column. An Array is
// immutable once built; accessors return the shared backing slices and
// callers must not modify them.
type Array struct {
	schema  *schema.Schema
	sources []string
	rowsize []int64
	index   []int64
	columns []Column
	byName  map[string]Column
}

// Offsets returns the exclusive prefix sum of rowsize with a leading 0.
func Offsets(rowsize []int64) []int64 {
	index := make([]int64, len(rowsize)+1)
	for i, n := range rowsize {
		index[i+1] = index[i] + n
	}
	return index
}

func newArray(s *schema.Schema, sources []string, rowsize []int64) (*Array, error) {
	a := &Array{
		schema:  s,
		sources: sources,
		rowsize: rowsize,
		index:   Offsets(rowsize),
		columns: make([]Column, 0, s.Len()),
		byName:  make(map[string]Column, s.Len()),
	}
	nbObs := int(a.index[len(rowsize)])

	for i := range s.Fields() {
		f := &s.Fields()[i]
		var col Column
		switch {
		case f.Decode == schema.RowSize:
			col = &Values[int64]{field: f, data: rowsize}
		case f.Dim == schema.Trajectory:
			c, err := newColumn(f, len(rowsize))
			if err != nil {
				return nil, err
			}
			col = c
		default:
			c, err := newColumn(f, nbObs)
			if err != nil {
				return nil, err
			}
			col = c
		}
		a.columns = append(a.columns, col)
		a.byName[f.Name] = col
	}
	return a, nil
}

// Schema returns the field table the array was built with.
func (a *Array) Schema() *schema.Schema { return a.schema }

// Sources returns the source name of each trajectory, in order.
func (a *Array) Sources() []string { return a.sources }

// RowSize returns the observation count of each trajectory.
func (a *Array) RowSize() []int64 { return a.rowsize }

// Index returns the trajectory offsets, of length NumTrajectories()+1.
func (a *Array) Index() []int64 { return a.index }

// NumTrajectories returns the number of trajectories.
func (a *Array) NumTrajectories() int { return len(a.rowsize) }

// NumObservations returns the total observation count.
func (a *Array) NumObservations() int { return int(a.index[len(a.index)-1]) }

// Columns returns every column in schema order.
func (a *Array) Columns() []Column { return a.columns }

// Column returns the named column.
func (a *Array) Column(name string) (Column, error) {
	c, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return c, nil
}

// Bounds returns the observation range of trajectory i.
func (a *Array) Bounds(i int) (lo, hi int) {
	return int(a.index[i]), int(a.index[i+1])
}

// Get returns the typed backing slice of the named column. Time columns
// are []int64.
func Get[T Element](a *Array, name string) ([]T, error) {
	c, err := a.Column(name)
	if err != nil {
		return nil, err
	}
	v, ok := c.(*Values[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrKindMismatch, name, c.Field().Kind)
	}
	return v.data, nil
}

// Validate checks the layout invariants of the array.
func (a *Array) Validate() error {
	if len(a.index) != len(a.rowsize)+1 || a.index[0] != 0 {
		return fmt.Errorf("%w: index has %d entries for %d trajectories", ErrInvalidArray, len(a.index), len(a.rowsize))
	}
	for i, n := range a.rowsize {
		if n < 0 || a.index[i+1] != a.index[i]+n {
			return fmt.Errorf("%w: index is not the prefix sum of rowsize at %d", ErrInvalidArray, i)
		}
	}
	nbObs := a.NumObservations()
	for _, c := range a.columns {
		want := len(a.rowsize)
		if c.Field().Dim == schema.Observation {
			want = nbObs
		}
		if c.Len() != want {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrInvalidArray, c.Field().Name, c.Len(), want)
		}
	}
	return nil
}
