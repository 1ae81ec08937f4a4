// Package raggedtest provides in-memory records for testing code that
// builds or consumes ragged arrays.
package raggedtest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/basekick-labs/drift/internal/ragged"
)

// Record is an in-memory ragged.Record.
type Record struct {
	N      int
	Vars   map[string]any
	Attrs  map[string]string
	LenErr error
	closed atomic.Int32
}

func (r *Record) Len() (int, error) {
	if r.LenErr != nil {
		return 0, r.LenErr
	}
	return r.N, nil
}

func (r *Record) Var(name string) (any, error) {
	v, ok := r.Vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: variable %s", ragged.ErrMissingField, name)
	}
	return v, nil
}

func (r *Record) Attr(name string) (string, bool) {
	s, ok := r.Attrs[name]
	return s, ok
}

func (r *Record) Has(name string) bool {
	_, ok := r.Vars[name]
	return ok
}

func (r *Record) Close() error {
	r.closed.Add(1)
	return nil
}

// Closed returns how many times the record was closed.
func (r *Record) Closed() int {
	return int(r.closed.Load())
}

// WithVar sets a variable and returns r.
func (r *Record) WithVar(name string, v any) *Record {
	r.Vars[name] = v
	return r
}

// WithAttr sets a global attribute and returns r.
func (r *Record) WithAttr(name, v string) *Record {
	r.Attrs[name] = v
	return r
}

// Without removes a variable or attribute and returns r.
func (r *Record) Without(name string) *Record {
	delete(r.Vars, name)
	delete(r.Attrs, name)
	return r
}

// Source serves one Record.
type Source struct {
	ID      string
	Rec     *Record
	OpenErr error
	opens   atomic.Int32
}

func (s *Source) Name() string { return s.ID }

func (s *Source) Open(ctx context.Context) (ragged.Record, error) {
	s.opens.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	return s.Rec, nil
}

// Opens returns how many times the source was opened.
func (s *Source) Opens() int {
	return int(s.opens.Load())
}

// Sources wraps records as sources named drifter_<i>.nc.
func Sources(recs ...*Record) []ragged.Source {
	out := make([]ragged.Source, len(recs))
	for i, r := range recs {
		out[i] = &Source{ID: fmt.Sprintf("drifter_%d.nc", i), Rec: r}
	}
	return out
}

// Drifter returns a complete hourly GDP record with the given
// observation times (seconds since the epoch) and longitudes. Other
// observation variables are filled with small constant values.
func Drifter(id int64, times, lon []float64) *Record {
	n := len(times)
	if len(lon) != n {
		panic("raggedtest: times and lon lengths differ")
	}

	f32 := func(v float32) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	lon32 := make([]float32, n)
	for i, v := range lon {
		lon32[i] = float32(v)
	}
	ts := append([]float64(nil), times...)
	flags := make([]int8, n)
	for i := range flags {
		flags[i] = 5
	}

	deploy, end := -1e34, -1e34
	if n > 0 {
		deploy, end = times[0], times[n-1]
	}

	return &Record{
		N: n,
		Vars: map[string]any{
			"ID":               []int64{id},
			"WMO":              []int32{4401234},
			"expno":            []int32{9325},
			"deploy_date":      []float64{deploy},
			"deploy_lon":       []float32{-30.25},
			"deploy_lat":       []float32{10.5},
			"end_date":         []float64{end},
			"end_lon":          []float32{-28.75},
			"end_lat":          []float32{12.0},
			"drogue_lost_date": []float64{-1e34},
			"typedeath":        []int8{3},
			"typebuoy":         "SVPB",
			"longitude":        lon32,
			"latitude":         f32(10.5),
			"time":             ts,
			"ve":               f32(0.25),
			"vn":               f32(-0.125),
			"err_lat":          f32(0.001),
			"err_lon":          f32(0.002),
			"err_ve":           f32(0.01),
			"err_vn":           f32(0.02),
			"gap":              f32(3600),
			"sst":              f32(300.5),
			"sst1":             f32(300.25),
			"sst2":             f32(0.25),
			"err_sst":          f32(0.05),
			"err_sst1":         f32(0.04),
			"err_sst2":         f32(0.03),
			"flg_sst":          append([]int8(nil), flags...),
			"flg_sst1":         append([]int8(nil), flags...),
			"flg_sst2":         append([]int8(nil), flags...),
		},
		Attrs: map[string]string{
			"location_type":         "GPS",
			"DeployingShip":         "R/V Ronald H. Brown",
			"DeploymentStatus":      "Normal",
			"BuoyTypeManufacturer":  "Pacific Gyre",
			"BuoyTypeSensorArray":   "SVPB",
			"CurrentProgram":        "7",
			"PurchaserFunding":      "NOAA",
			"SensorUpgrade":         "none",
			"Transmissions":         "Iridium",
			"DeployingCountry":      "USA",
			"DeploymentComments":    "deployed near the equator",
			"ManufactureYear":       "2019",
			"ManufactureMonth":      "6",
			"ManufactureSensorType": "SST thermistor",
			"ManufactureVoltage":    "56 Volts",
			"FloatDiameter":         "35.5 cm",
			"SubsfcFloatPresence":   "1",
			"DrogueType":            "Holey Sock",
			"DrogueLength":          "4.8 m",
			"DrogueBallast":         "1.4 kg",
			"DragAreaAboveDrogue":   "10.66 m^2",
			"DragAreaOfDrogue":      "416.6 m^2",
			"DragAreaRatio":         "39.08",
			"DrogueCenterDepth":     "15.0 m",
			"DrogueDetectSensor":    "strain gauge",
		},
	}
}
