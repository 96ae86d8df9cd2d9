// Package wire implements the ordered, length-implicit binary primitives
// used for node-to-node transport. Varints and length-delimited strings are
// encoded with protowire; there are no field tags, so a reader must consume
// values in exactly the order they were written.
package wire

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Generic value type markers.
const (
	typeNull byte = iota
	typeString
	typeInt64
	typeFloat64
	typeBool
	typeList
	typeMap
)

type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteBool(v bool) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeBool(v))
}

// WriteVInt writes v as the varint of its 32-bit two's complement, so
// negative values take five bytes. v must fit in an int32; callers holding
// wider values check with FitsVInt first.
func (w *Writer) WriteVInt(v int) {
	w.buf = protowire.AppendVarint(w.buf, uint64(uint32(int32(v))))
}

func FitsVInt(v int) bool { return v >= math.MinInt32 && v <= math.MaxInt32 }

// WriteVLong writes a non-negative int64 as a varint. Negative values take
// ten bytes; use WriteZLong when they are expected.
func (w *Writer) WriteVLong(v int64) {
	w.buf = protowire.AppendVarint(w.buf, uint64(v))
}

// WriteZLong writes a zig-zag varint, compact for small negative values.
func (w *Writer) WriteZLong(v int64) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeZigZag(v))
}

func (w *Writer) WriteLong(v int64) {
	w.buf = protowire.AppendFixed64(w.buf, uint64(v))
}

func (w *Writer) WriteDouble(v float64) {
	w.buf = protowire.AppendFixed64(w.buf, math.Float64bits(v))
}

func (w *Writer) WriteString(s string) {
	w.buf = protowire.AppendString(w.buf, s)
}

// WriteOptionalString writes a presence flag followed by the value.
func (w *Writer) WriteOptionalString(s *string) {
	w.WriteBool(s != nil)
	if s != nil {
		w.WriteString(*s)
	}
}

// WriteEnum writes an enum by ordinal.
func (w *Writer) WriteEnum(ordinal int) { w.WriteVInt(ordinal) }

// WriteStringLongMap writes the entries sorted by key so equal maps encode
// to equal bytes.
func (w *Writer) WriteStringLongMap(m map[string]int64) {
	w.WriteVInt(len(m))
	for _, k := range sortedKeys(m) {
		w.WriteString(k)
		w.WriteZLong(m[k])
	}
}

// WriteGenericMap writes an object of generic values; see WriteGenericValue.
func (w *Writer) WriteGenericMap(m map[string]any) error {
	w.WriteVInt(len(m))
	for _, k := range sortedKeys(m) {
		w.WriteString(k)
		if err := w.WriteGenericValue(m[k]); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return nil
}

// WriteGenericValue writes a self-describing value. Supported types are
// nil, string, bool, the signed integer kinds (read back as int64), float32
// and float64 (read back as float64), []any and map[string]any.
func (w *Writer) WriteGenericValue(v any) error {
	switch t := v.(type) {
	case nil:
		w.buf = append(w.buf, typeNull)
	case string:
		w.buf = append(w.buf, typeString)
		w.WriteString(t)
	case bool:
		w.buf = append(w.buf, typeBool)
		w.WriteBool(t)
	case int:
		w.writeInt(int64(t))
	case int32:
		w.writeInt(int64(t))
	case int64:
		w.writeInt(t)
	case float32:
		w.buf = append(w.buf, typeFloat64)
		w.WriteDouble(float64(t))
	case float64:
		w.buf = append(w.buf, typeFloat64)
		w.WriteDouble(t)
	case []any:
		w.buf = append(w.buf, typeList)
		w.WriteVInt(len(t))
		for i, e := range t {
			if err := w.WriteGenericValue(e); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
	case map[string]any:
		w.buf = append(w.buf, typeMap)
		return w.WriteGenericMap(t)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownValueType, v)
	}
	return nil
}

func (w *Writer) writeInt(v int64) {
	w.buf = append(w.buf, typeInt64)
	w.WriteZLong(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
