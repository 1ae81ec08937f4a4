package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGDPSchema(t *testing.T) {
	s := GDP()

	traj := s.Dim(Trajectory)
	obs := s.Dim(Observation)
	assert.Equal(t, s.Len(), len(traj)+len(obs))

	for _, name := range []string{IDField, TimeField, DrogueLostField, "rowsize", "ids", "drogue_status"} {
		_, ok := s.Lookup(name)
		assert.True(t, ok, name)
	}

	f, ok := s.Lookup("ManufactureSensorType")
	require.True(t, ok)
	assert.Equal(t, 5, f.Width)

	f, ok = s.Lookup("DrogueType")
	require.True(t, ok)
	assert.Equal(t, 7, f.Width)

	f, ok = s.Lookup("FloatDiameter")
	require.True(t, ok)
	assert.Equal(t, 3, f.SuffixWidth)
	assert.True(t, math.IsNaN(f.Fallback))

	f, ok = s.Lookup("longitude")
	require.True(t, ok)
	assert.Equal(t, FillValue, f.Decode)
	assert.Equal(t, Observation, f.Dim)
}

func TestGDPRequiredVariables(t *testing.T) {
	req := GDP().Required()

	assert.Contains(t, req, "typedeath")
	assert.Contains(t, req, "typebuoy")
	assert.Contains(t, req, "longitude")
	assert.NotContains(t, req, "DeployingShip")
	assert.NotContains(t, req, "rowsize")
}

func TestFieldAttrs(t *testing.T) {
	f, ok := GDP().Lookup("flg_sst")
	require.True(t, ok)

	attrs := f.Attrs()
	assert.Equal(t, "Fitted sea water temperature quality flag", attrs["long_name"])
	assert.Equal(t, "0, 1, 2, 3, 4, 5", attrs["flag_values"])
	assert.NotEmpty(t, attrs["flag_meanings"])
	_, hasComments := attrs["comments"]
	assert.False(t, hasComments)
}

func TestNewRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
		err    error
	}{
		{
			name: "duplicate",
			fields: []Field{
				{Name: "a", Source: "a", Origin: Variable, Kind: Int32},
				{Name: "a", Source: "a", Origin: Variable, Kind: Int32},
			},
			err: ErrDuplicateField,
		},
		{
			name:   "empty name",
			fields: []Field{{Source: "a", Origin: Variable, Kind: Int32}},
			err:    ErrInvalidField,
		},
		{
			name:   "string without width",
			fields: []Field{{Name: "s", Source: "s", Origin: Attribute, Kind: String, Decode: Truncate}},
			err:    ErrInvalidField,
		},
		{
			name:   "fill value on integer",
			fields: []Field{{Name: "f", Source: "f", Origin: Variable, Kind: Int8, Decode: FillValue}},
			err:    ErrInvalidField,
		},
		{
			name:   "copy time",
			fields: []Field{{Name: "t", Source: "t", Origin: Variable, Kind: Time}},
			err:    ErrInvalidField,
		},
		{
			name:   "NaN fallback on integer",
			fields: []Field{{Name: "n", Source: "n", Origin: Attribute, Kind: Int16, Decode: Numeric, Fallback: math.NaN()}},
			err:    ErrInvalidField,
		},
		{
			name:   "missing source",
			fields: []Field{{Name: "x", Origin: Variable, Kind: Float32, Decode: FillValue, Dim: Observation}},
			err:    ErrInvalidField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fields)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
