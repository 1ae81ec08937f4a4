// Package source opens single-drifter netCDF files as ragged.Record values
// and stages them from storage backends.
package source

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/schema"
)

// ErrNotSingleTrajectory is returned when a file holds more than one
// trajectory along its leading dimension.
var ErrNotSingleTrajectory = errors.New("file holds more than one trajectory")

// NetCDF is an open per-drifter file. Observation variables are laid out
// (traj, obs) with a traj dimension of length 1, or (obs).
type NetCDF struct {
	path  string
	group api.Group
	vars  map[string]bool
}

// OpenNetCDF opens a netCDF (CDF or HDF5/netCDF4) file.
func OpenNetCDF(path string) (*NetCDF, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	return newNetCDF(path, g), nil
}

func newNetCDF(path string, g api.Group) *NetCDF {
	names := g.ListVariables()
	vars := make(map[string]bool, len(names))
	for _, n := range names {
		vars[n] = true
	}
	return &NetCDF{path: path, group: g, vars: vars}
}

// Path returns the file the record was opened from.
func (r *NetCDF) Path() string {
	return r.path
}

// Len returns the observation count. Only the first row of the length
// variable is read.
func (r *NetCDF) Len() (int, error) {
	name := schema.ObsLengthVariable
	if !r.vars[name] {
		return 0, fmt.Errorf("%w: variable %q", ragged.ErrMissingField, name)
	}
	vg, err := r.group.GetVarGetter(name)
	if err != nil {
		return 0, fmt.Errorf("variable %q: %w", name, err)
	}

	outer := vg.Len()
	if len(vg.Dimensions()) < 2 || outer == 0 {
		return int(outer), nil
	}
	if outer != 1 {
		return 0, fmt.Errorf("%w: %s has %d along %s", ErrNotSingleTrajectory, r.path, outer, vg.Dimensions()[0])
	}

	row, err := vg.GetSlice(0, 1)
	if err != nil {
		return 0, fmt.Errorf("variable %q: %w", name, err)
	}
	return innerLen(row), nil
}

// innerLen returns the length of the first row of a [1][...] slice.
func innerLen(v any) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return 0
	}
	first := rv.Index(0)
	switch first.Kind() {
	case reflect.Slice:
		return reflect.ValueOf(flatten(first.Interface())).Len()
	default:
		return rv.Len()
	}
}

// Var returns the variable's values flattened to one dimension.
func (r *NetCDF) Var(name string) (any, error) {
	if !r.vars[name] {
		return nil, fmt.Errorf("%w: variable %q", ragged.ErrMissingField, name)
	}
	v, err := r.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	return flatten(v.Values), nil
}

// Attr returns a global attribute rendered as text.
func (r *NetCDF) Attr(name string) (string, bool) {
	attrs := r.group.Attributes()
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(name)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return fmt.Sprint(v), true
	}
}

func (r *NetCDF) Has(name string) bool {
	return r.vars[name]
}

func (r *NetCDF) Close() error {
	r.group.Close()
	return nil
}

// flatten concatenates nested slices ([][]T, [][][]T) into a []T. Flat
// slices and scalars are returned unchanged.
func flatten(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() != reflect.Slice {
		return v
	}

	leaf := rv.Type().Elem()
	for leaf.Kind() == reflect.Slice {
		leaf = leaf.Elem()
	}

	out := reflect.MakeSlice(reflect.SliceOf(leaf), 0, 0)
	var walk func(x reflect.Value)
	walk = func(x reflect.Value) {
		if x.Type().Elem().Kind() == reflect.Slice {
			for i := 0; i < x.Len(); i++ {
				walk(x.Index(i))
			}
			return
		}
		out = reflect.AppendSlice(out, x)
	}
	walk(rv)
	return out.Interface()
}
