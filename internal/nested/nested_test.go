package nested

import (
	"context"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/ragged/raggedtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArray(t *testing.T) *ragged.Array {
	t.Helper()
	a := raggedtest.Drifter(101, []float64{1e9, 1e9 + 3600, 1e9 + 7200}, []float64{1, 2, 3})
	b := raggedtest.Drifter(202, []float64{2e9, 2e9 + 3600}, []float64{4, -1e34})
	c := raggedtest.Drifter(303, nil, nil)
	arr, err := ragged.Build(context.Background(), raggedtest.Sources(a, b, c), ragged.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return arr
}

func equalWithNaN(t *testing.T, want, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(float64(want[i])) {
			assert.True(t, math.IsNaN(float64(got[i])), "index %d", i)
			continue
		}
		assert.Equal(t, want[i], got[i], "index %d", i)
	}
}

func TestObservationsRoundTrip(t *testing.T) {
	arr := testArray(t)
	flat, err := ragged.Get[float32](arr, "longitude")
	require.NoError(t, err)

	for _, backing := range []Backing{ZeroCopy, Materialized} {
		t.Run(backing.String(), func(t *testing.T) {
			v, err := New(arr, backing)
			require.NoError(t, err)

			lon, err := Observations[float32](v, "longitude")
			require.NoError(t, err)
			require.Equal(t, 3, lon.Len())

			assert.Equal(t, []float32{1, 2, 3}, lon.At(0))
			assert.Len(t, lon.At(1), 2)
			assert.Empty(t, lon.At(2))

			equalWithNaN(t, flat, lon.Flatten())

			got, err := Flatten[float32](v, "longitude")
			require.NoError(t, err)
			equalWithNaN(t, flat, got)
		})
	}
}

func TestZeroCopySharesMemory(t *testing.T) {
	arr := testArray(t)
	flat, err := ragged.Get[float32](arr, "longitude")
	require.NoError(t, err)

	zc, err := New(arr, ZeroCopy)
	require.NoError(t, err)
	lists, err := Observations[float32](zc, "longitude")
	require.NoError(t, err)
	assert.Same(t, &flat[3], &lists.At(1)[0])
	assert.Equal(t, 2, cap(lists.At(1)))

	mat, err := New(arr, Materialized)
	require.NoError(t, err)
	copied, err := Observations[float32](mat, "longitude")
	require.NoError(t, err)
	assert.NotSame(t, &flat[3], &copied.At(1)[0])
}

func TestTrajectoryFieldsPassThrough(t *testing.T) {
	arr := testArray(t)
	v, err := New(arr, ZeroCopy)
	require.NoError(t, err)

	ids, err := Trajectory[int64](v, "ID")
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 202, 303}, ids)

	_, err = Trajectory[float32](v, "longitude")
	assert.ErrorIs(t, err, ragged.ErrKindMismatch)

	_, err = Observations[int64](v, "ID")
	assert.ErrorIs(t, err, ragged.ErrKindMismatch)

	_, err = Observations[float32](v, "nope")
	assert.ErrorIs(t, err, ragged.ErrUnknownField)
}

func TestRow(t *testing.T) {
	v, err := New(testArray(t), ZeroCopy)
	require.NoError(t, err)

	row, err := v.Row(0)
	require.NoError(t, err)
	assert.Equal(t, int64(101), row["ID"])
	assert.Equal(t, int64(3), row["rowsize"])
	assert.Equal(t, []float32{1, 2, 3}, row["longitude"])
	assert.Equal(t, []int64{101, 101, 101}, row["ids"])

	_, err = v.Row(3)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	v, err := New(testArray(t), ZeroCopy)
	require.NoError(t, err)

	i, ok, err := v.Lookup(202)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok, err = v.Lookup(999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArrowRecord(t *testing.T) {
	arr := testArray(t)
	v, err := New(arr, ZeroCopy)
	require.NoError(t, err)

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	meta := arrow.NewMetadata([]string{"title"}, []string{"test"})
	rec, err := v.Arrow(mem, &meta)
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(3), rec.NumRows())
	assert.Equal(t, int64(arr.Schema().Len()), rec.NumCols())

	title, ok := rec.Schema().Metadata().GetValue("title")
	assert.True(t, ok)
	assert.Equal(t, "test", title)

	idx := rec.Schema().FieldIndices("longitude")
	require.Len(t, idx, 1)
	lon, ok := rec.Column(idx[0]).(*array.LargeList)
	require.True(t, ok)
	assert.Equal(t, arr.Index(), lon.Offsets())
	values := lon.ListValues().(*array.Float32).Float32Values()
	flat, err := ragged.Get[float32](arr, "longitude")
	require.NoError(t, err)
	equalWithNaN(t, flat, values)

	f := rec.Schema().Field(idx[0])
	units, ok := f.Metadata.GetValue("units")
	assert.True(t, ok)
	assert.Equal(t, "degrees_east", units)

	idx = rec.Schema().FieldIndices("drogue_lost_date")
	require.Len(t, idx, 1)
	lost := rec.Column(idx[0]).(*array.Timestamp)
	assert.Equal(t, 3, lost.NullN())

	idx = rec.Schema().FieldIndices("type_buoy")
	require.Len(t, idx, 1)
	assert.Equal(t, "SVPB", rec.Column(idx[0]).(*array.String).Value(0))
}
