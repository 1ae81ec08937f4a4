package source

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/ragged/raggedtest"
	"github.com/basekick-labs/drift/internal/schema"
)

// fakeAttrs is an ordered api.AttributeMap.
type fakeAttrs struct {
	keys []string
	vals map[string]any
}

func (a *fakeAttrs) Keys() []string { return a.keys }
func (a *fakeAttrs) Get(key string) (any, bool) {
	v, ok := a.vals[key]
	return v, ok
}
func (a *fakeAttrs) GetType(key string) (string, bool)   { return "", false }
func (a *fakeAttrs) GetGoType(key string) (string, bool) { return "", false }

func (a *fakeAttrs) set(key string, v any) {
	if a.vals == nil {
		a.vals = make(map[string]any)
	}
	if _, ok := a.vals[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.vals[key] = v
}

type fakeGetter struct {
	v *api.Variable
}

func (g fakeGetter) Len() int64 {
	rv := reflect.ValueOf(g.v.Values)
	if rv.Kind() != reflect.Slice {
		return 1
	}
	return int64(rv.Len())
}
func (g fakeGetter) Values() (any, error) { return g.v.Values, nil }
func (g fakeGetter) GetSlice(begin, end int64) (any, error) {
	return reflect.ValueOf(g.v.Values).Slice(int(begin), int(end)).Interface(), nil
}
func (g fakeGetter) Dimensions() []string         { return g.v.Dimensions }
func (g fakeGetter) Attributes() api.AttributeMap { return g.v.Attributes }
func (g fakeGetter) Type() string                 { return "" }
func (g fakeGetter) GoType() string               { return "" }

type fakeGroup struct {
	names  []string
	vars   map[string]*api.Variable
	attrs  *fakeAttrs
	closed int
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{vars: make(map[string]*api.Variable), attrs: &fakeAttrs{}}
}

func (g *fakeGroup) add(name string, values any, dims ...string) *fakeGroup {
	g.names = append(g.names, name)
	g.vars[name] = &api.Variable{Values: values, Dimensions: dims, Attributes: &fakeAttrs{}}
	return g
}

func (g *fakeGroup) Close()                       { g.closed++ }
func (g *fakeGroup) Attributes() api.AttributeMap { return g.attrs }
func (g *fakeGroup) ListVariables() []string      { return g.names }
func (g *fakeGroup) GetVariable(name string) (*api.Variable, error) {
	v, ok := g.vars[name]
	if !ok {
		return nil, fmt.Errorf("no variable %s", name)
	}
	return v, nil
}
func (g *fakeGroup) GetVarGetter(name string) (api.VarGetter, error) {
	v, err := g.GetVariable(name)
	if err != nil {
		return nil, err
	}
	return fakeGetter{v}, nil
}
func (g *fakeGroup) ListSubgroups() []string            { return nil }
func (g *fakeGroup) GetGroup(string) (api.Group, error) { return nil, fmt.Errorf("no groups") }
func (g *fakeGroup) ListTypes() []string                { return nil }
func (g *fakeGroup) GetType(string) (string, bool)      { return "", false }
func (g *fakeGroup) GetGoType(string) (string, bool)    { return "", false }

// rows wraps a flat slice as a single (traj, obs) row.
func rows(v any) any {
	rv := reflect.ValueOf(v)
	out := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
	out.Index(0).Set(rv)
	return out.Interface()
}

// groupFromRecord lays a raggedtest record out the way per-drifter GDP
// files are: observation variables (traj, obs), trajectory variables (traj).
func groupFromRecord(rec *raggedtest.Record) *fakeGroup {
	obs := make(map[string]bool)
	for _, f := range schema.GDP().Dim(schema.Observation) {
		if f.Origin == schema.Variable {
			obs[f.Source] = true
		}
	}

	g := newFakeGroup()
	for name, v := range rec.Vars {
		if obs[name] {
			g.add(name, rows(v), "traj", "obs")
		} else {
			g.add(name, v, "traj")
		}
	}
	for k, v := range rec.Attrs {
		g.attrs.set(k, v)
	}
	return g
}

type groupSource struct {
	name string
	g    *fakeGroup
}

func (s groupSource) Name() string { return s.name }
func (s groupSource) Open(ctx context.Context) (ragged.Record, error) {
	return newNetCDF(s.name, s.g), nil
}

func TestNetCDF_Len(t *testing.T) {
	t.Run("traj by obs", func(t *testing.T) {
		g := newFakeGroup().add("time", [][]float64{{1, 2, 3, 4}}, "traj", "obs")
		n, err := newNetCDF("a.nc", g).Len()
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("obs only", func(t *testing.T) {
		g := newFakeGroup().add("time", []float64{1, 2, 3}, "obs")
		n, err := newNetCDF("a.nc", g).Len()
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("empty", func(t *testing.T) {
		g := newFakeGroup().add("time", [][]float64{}, "traj", "obs")
		n, err := newNetCDF("a.nc", g).Len()
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("several trajectories", func(t *testing.T) {
		g := newFakeGroup().add("time", [][]float64{{1}, {2}}, "traj", "obs")
		_, err := newNetCDF("a.nc", g).Len()
		assert.ErrorIs(t, err, ErrNotSingleTrajectory)
	})

	t.Run("missing time", func(t *testing.T) {
		g := newFakeGroup().add("longitude", []float32{1}, "obs")
		_, err := newNetCDF("a.nc", g).Len()
		assert.ErrorIs(t, err, ragged.ErrMissingField)
	})
}

func TestNetCDF_VarAttr(t *testing.T) {
	g := newFakeGroup().
		add("sst", [][]float32{{290.5, 291}}, "traj", "obs").
		add("ID", []int64{300234}, "traj").
		add("typebuoy", "SVPB", "traj", "strlen")
	g.attrs.set("DeployingShip", "Ronald H. Brown")
	g.attrs.set("CurrentProgram", int32(7))
	rec := newNetCDF("drifter_300234.nc", g)

	v, err := rec.Var("sst")
	require.NoError(t, err)
	assert.Equal(t, []float32{290.5, 291}, v)

	v, err = rec.Var("ID")
	require.NoError(t, err)
	assert.Equal(t, []int64{300234}, v)

	v, err = rec.Var("typebuoy")
	require.NoError(t, err)
	assert.Equal(t, "SVPB", v)

	_, err = rec.Var("vn")
	assert.ErrorIs(t, err, ragged.ErrMissingField)

	s, ok := rec.Attr("DeployingShip")
	assert.True(t, ok)
	assert.Equal(t, "Ronald H. Brown", s)

	s, ok = rec.Attr("CurrentProgram")
	assert.True(t, ok)
	assert.Equal(t, "7", s)

	_, ok = rec.Attr("DrogueType")
	assert.False(t, ok)

	assert.True(t, rec.Has("sst"))
	assert.False(t, rec.Has("vn"))
	assert.Equal(t, "drifter_300234.nc", rec.Path())

	require.NoError(t, rec.Close())
	assert.Equal(t, 1, g.closed)
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, []int8{1, 2, 3, 4}, flatten([][]int8{{1, 2}, {3, 4}}))
	assert.Equal(t, []float64{1, 2, 3}, flatten([][][]float64{{{1}, {2}}, {{3}}}))
	assert.Equal(t, []string{"a", "b"}, flatten([]string{"a", "b"}))
	assert.Equal(t, int32(5), flatten(int32(5)))
	assert.Equal(t, []float32{}, flatten([][]float32{}))
}

func TestNetCDF_BuildThroughReader(t *testing.T) {
	a := raggedtest.Drifter(101, []float64{0, 3600, 7200}, []float64{-30, -30.5, -1e34})
	b := raggedtest.Drifter(102, []float64{10800, 14400}, []float64{10, 11})

	sources := []ragged.Source{
		groupSource{name: "drifter_101.nc", g: groupFromRecord(a)},
		groupSource{name: "drifter_102.nc", g: groupFromRecord(b)},
	}

	arr, err := ragged.Build(context.Background(), sources, ragged.Options{Workers: 2, Logger: zerolog.Nop()})
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 2}, arr.RowSize())
	assert.Equal(t, []int64{0, 3, 5}, arr.Index())

	ids, err := ragged.Get[int64](arr, "ids")
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 101, 101, 102, 102}, ids)

	lon, err := ragged.Get[float32](arr, "longitude")
	require.NoError(t, err)
	assert.Equal(t, float32(-30.5), lon[1])
	assert.True(t, math.IsNaN(float64(lon[2])))

	buoy, err := ragged.Get[string](arr, "type_buoy")
	require.NoError(t, err)
	assert.Equal(t, []string{"SVPB", "SVPB"}, buoy)
}
