package nested

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/schema"
)

// timestampType is the Arrow type of decoded time fields.
var timestampType = &arrow.TimestampType{Unit: arrow.Second, TimeZone: "UTC"}

// int64SliceToTimestamps reinterprets []int64 as []arrow.Timestamp
// without copying; arrow.Timestamp is defined as int64.
func int64SliceToTimestamps(src []int64) []arrow.Timestamp {
	return *(*[]arrow.Timestamp)(unsafe.Pointer(&src))
}

// ArrowType returns the Arrow element type of a field kind.
func ArrowType(k schema.Kind) (arrow.DataType, error) {
	switch k {
	case schema.Bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case schema.Int8:
		return arrow.PrimitiveTypes.Int8, nil
	case schema.Int16:
		return arrow.PrimitiveTypes.Int16, nil
	case schema.Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case schema.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case schema.Float32:
		return arrow.PrimitiveTypes.Float32, nil
	case schema.Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case schema.Time:
		return timestampType, nil
	case schema.String:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, fmt.Errorf("%w: kind %s", ragged.ErrUnsupportedType, k)
	}
}

// FieldMetadata returns a field's descriptive attributes as Arrow
// metadata with sorted keys.
func FieldMetadata(f *schema.Field) arrow.Metadata {
	attrs := f.Attrs()
	if f.Kind == schema.Time {
		attrs["units"] = schema.EpochUnits
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = attrs[k]
	}
	return arrow.NewMetadata(keys, vals)
}

// ArrowSchema returns the nested Arrow schema of s: trajectory fields are
// scalar columns and observation fields are large_list columns.
func ArrowSchema(s *schema.Schema, meta *arrow.Metadata) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, s.Len())
	for i := range s.Fields() {
		f := &s.Fields()[i]
		dt, err := ArrowType(f.Kind)
		if err != nil {
			return nil, err
		}
		nullable := f.Kind == schema.Time
		if f.Dim == schema.Observation {
			dt = arrow.LargeListOfField(arrow.Field{Name: "item", Type: dt, Nullable: nullable})
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: dt, Nullable: nullable, Metadata: FieldMetadata(f)})
	}
	return arrow.NewSchema(fields, meta), nil
}

// Arrow returns the view as an Arrow record with one row per trajectory.
// Fixed-width numeric buffers and the large_list offsets alias the
// ragged array's memory; booleans, strings and timestamps (NaT becomes
// null) are copied through builders allocated from mem. The caller must
// release the record.
func (v *View) Arrow(mem memory.Allocator, meta *arrow.Metadata) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	sch, err := ArrowSchema(v.array.Schema(), meta)
	if err != nil {
		return nil, err
	}

	cols := make([]arrow.Array, 0, len(v.array.Columns()))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	index := v.array.Index()
	for _, col := range v.array.Columns() {
		values, err := arrowValues(mem, col)
		if err != nil {
			return nil, err
		}
		if col.Field().Dim == schema.Observation {
			list := largeList(sch.Field(len(cols)).Type, values, index)
			values.Release()
			values = list
		}
		cols = append(cols, values)
	}

	return array.NewRecord(sch, cols, int64(v.Len())), nil
}

// largeList wraps child as a large_list array whose offsets are index.
func largeList(dt arrow.DataType, child arrow.Array, index []int64) arrow.Array {
	offsets := memory.NewBufferBytes(arrow.Int64Traits.CastToBytes(index))
	data := array.NewData(dt, len(index)-1, []*memory.Buffer{nil, offsets}, []arrow.ArrayData{child.Data()}, 0, 0)
	defer data.Release()
	return array.MakeFromData(data)
}

// wrapFixed builds a fixed-width array over existing bytes.
func wrapFixed(dt arrow.DataType, n int, b []byte) arrow.Array {
	data := array.NewData(dt, n, []*memory.Buffer{nil, memory.NewBufferBytes(b)}, nil, 0, 0)
	defer data.Release()
	return array.MakeFromData(data)
}

// arrowValues returns the flat Arrow array of one column.
func arrowValues(mem memory.Allocator, col ragged.Column) (arrow.Array, error) {
	f := col.Field()
	switch c := col.(type) {
	case *ragged.Values[int8]:
		return wrapFixed(arrow.PrimitiveTypes.Int8, c.Len(), arrow.Int8Traits.CastToBytes(c.Data())), nil
	case *ragged.Values[int16]:
		return wrapFixed(arrow.PrimitiveTypes.Int16, c.Len(), arrow.Int16Traits.CastToBytes(c.Data())), nil
	case *ragged.Values[int32]:
		return wrapFixed(arrow.PrimitiveTypes.Int32, c.Len(), arrow.Int32Traits.CastToBytes(c.Data())), nil
	case *ragged.Values[float32]:
		return wrapFixed(arrow.PrimitiveTypes.Float32, c.Len(), arrow.Float32Traits.CastToBytes(c.Data())), nil
	case *ragged.Values[float64]:
		return wrapFixed(arrow.PrimitiveTypes.Float64, c.Len(), arrow.Float64Traits.CastToBytes(c.Data())), nil
	case *ragged.Values[int64]:
		if f.Kind != schema.Time {
			return wrapFixed(arrow.PrimitiveTypes.Int64, c.Len(), arrow.Int64Traits.CastToBytes(c.Data())), nil
		}
		b := array.NewTimestampBuilder(mem, timestampType)
		defer b.Release()
		valid := make([]bool, c.Len())
		for i, t := range c.Data() {
			valid[i] = t != ragged.NaT
		}
		b.AppendValues(int64SliceToTimestamps(c.Data()), valid)
		return b.NewArray(), nil
	case *ragged.Values[bool]:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendValues(c.Data(), nil)
		return b.NewArray(), nil
	case *ragged.Values[string]:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(c.Data(), nil)
		return b.NewArray(), nil
	default:
		return nil, fmt.Errorf("%w: column %s", ragged.ErrUnsupportedType, f.Name)
	}
}
