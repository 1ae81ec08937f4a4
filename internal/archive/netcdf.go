package archive

import (
	"fmt"
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/schema"
)

// Dimension names of the consolidated netCDF archive.
const (
	TrajDim = "traj"
	ObsDim  = "obs"
)

// WriteNetCDF writes a as a classic netCDF file at path with dimensions
// traj and obs. Time fields are stored as float64 seconds since the
// epoch with NaN for missing times; booleans are stored as int8.
func WriteNetCDF(path string, a *ragged.Array, attrs []Attribute) (err error) {
	w, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create netCDF writer: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close netCDF writer: %w", cerr)
		}
	}()

	for _, col := range a.Columns() {
		v, err := netcdfVariable(col)
		if err != nil {
			return err
		}
		if err := w.AddVar(col.Field().Name, v); err != nil {
			return fmt.Errorf("failed to add variable %s: %w", col.Field().Name, err)
		}
	}

	global, err := orderedAttrs(attrs)
	if err != nil {
		return err
	}
	if err := w.AddGlobalAttrs(global); err != nil {
		return fmt.Errorf("failed to add global attributes: %w", err)
	}
	return nil
}

func netcdfVariable(col ragged.Column) (api.Variable, error) {
	f := col.Field()
	dim := TrajDim
	if f.Dim == schema.Observation {
		dim = ObsDim
	}
	dims := []string{dim}

	fieldAttrs := f.Attrs()
	var values any
	switch c := col.(type) {
	case *ragged.Values[bool]:
		out := make([]int8, c.Len())
		for i, b := range c.Data() {
			if b {
				out[i] = 1
			}
		}
		values = out
	case *ragged.Values[int64]:
		if f.Kind != schema.Time {
			values = c.Data()
			break
		}
		out := make([]float64, c.Len())
		for i, t := range c.Data() {
			if t == ragged.NaT {
				out[i] = math.NaN()
				continue
			}
			out[i] = float64(t)
		}
		values = out
		fieldAttrs["units"] = schema.EpochUnits
	case *ragged.Values[string]:
		values = padStrings(c.Data())
		dims = append(dims, f.Name+"_strlen")
	default:
		values = col.Values()
	}

	vattrs, err := fieldAttrMap(f, fieldAttrs)
	if err != nil {
		return api.Variable{}, err
	}
	return api.Variable{Values: values, Dimensions: dims, Attributes: vattrs}, nil
}

// padStrings pads every value with NULs to the longest byte length so
// the values fit one fixed-width character dimension.
func padStrings(vals []string) []string {
	width := 1
	for _, s := range vals {
		width = max(width, len(s))
	}
	out := make([]string, len(vals))
	pad := make([]byte, width)
	for i, s := range vals {
		out[i] = s + string(pad[:width-len(s)])
	}
	return out
}

// fieldAttrKeys is the output order of per-variable attributes.
var fieldAttrKeys = []string{"long_name", "units", "comments", "flag_values", "flag_meanings"}

func fieldAttrMap(f *schema.Field, attrs map[string]string) (api.AttributeMap, error) {
	keys := make([]string, 0, len(attrs))
	vals := make(map[string]any, len(attrs))
	for _, k := range fieldAttrKeys {
		if v, ok := attrs[k]; ok {
			keys = append(keys, k)
			vals[k] = v
		}
	}
	m, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, fmt.Errorf("attributes of %s: %w", f.Name, err)
	}
	return m, nil
}

func orderedAttrs(attrs []Attribute) (api.AttributeMap, error) {
	keys := make([]string, 0, len(attrs))
	vals := make(map[string]any, len(attrs))
	for _, at := range attrs {
		if _, dup := vals[at.Name]; !dup {
			keys = append(keys, at.Name)
		}
		vals[at.Name] = at.Value
	}
	m, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, fmt.Errorf("global attributes: %w", err)
	}
	return m, nil
}
