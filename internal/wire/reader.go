package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrTruncated        = errors.New("wire: truncated input")
	ErrUnknownValueType = errors.New("wire: unsupported generic value type")
)

// maxDepth bounds nesting of generic values read from untrusted input.
const maxDepth = 64

type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) fail(n int) error {
	return fmt.Errorf("%w at offset %d: %v", ErrTruncated, r.off, protowire.ParseError(n))
}

func (r *Reader) varint() (uint64, error) {
	v, n := protowire.ConsumeVarint(r.buf[r.off:])
	if n < 0 {
		return 0, r.fail(n)
	}
	r.off += n
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.varint()
	if err != nil {
		return false, err
	}
	return protowire.DecodeBool(v), nil
}

func (r *Reader) ReadVInt() (int, error) {
	v, err := r.varint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("wire: vint %d out of range at offset %d", v, r.off)
	}
	return int(int32(uint32(v))), nil
}

// ReadSize reads a vint that counts elements and so must not be negative.
func (r *Reader) ReadSize() (int, error) {
	n, err := r.ReadVInt()
	if err == nil && n < 0 {
		err = fmt.Errorf("wire: negative size %d at offset %d", n, r.off)
	}
	return n, err
}

func (r *Reader) ReadVLong() (int64, error) {
	v, err := r.varint()
	return int64(v), err
}

func (r *Reader) ReadZLong() (int64, error) {
	v, err := r.varint()
	return protowire.DecodeZigZag(v), err
}

func (r *Reader) ReadLong() (int64, error) {
	v, n := protowire.ConsumeFixed64(r.buf[r.off:])
	if n < 0 {
		return 0, r.fail(n)
	}
	r.off += n
	return int64(v), nil
}

func (r *Reader) ReadDouble() (float64, error) {
	v, err := r.ReadLong()
	return math.Float64frombits(uint64(v)), err
}

func (r *Reader) ReadString() (string, error) {
	v, n := protowire.ConsumeString(r.buf[r.off:])
	if n < 0 {
		return "", r.fail(n)
	}
	r.off += n
	return v, nil
}

func (r *Reader) ReadOptionalString() (*string, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	s, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Reader) ReadEnum() (int, error) { return r.ReadVInt() }

func (r *Reader) ReadStringLongMap() (map[string]int64, error) {
	n, err := r.ReadSize()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, min(n, r.Remaining()))
	for range n {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if out[k], err = r.ReadZLong(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Reader) ReadGenericMap() (map[string]any, error) {
	return r.readMap(0)
}

func (r *Reader) ReadGenericValue() (any, error) {
	return r.readValue(0)
}

func (r *Reader) readMap(depth int) (map[string]any, error) {
	n, err := r.ReadSize()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, min(n, r.Remaining()))
	for range n {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if out[k], err = r.readValue(depth + 1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Reader) readValue(depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("wire: generic value nested deeper than %d", maxDepth)
	}
	if r.Remaining() < 1 {
		return nil, fmt.Errorf("%w at offset %d", ErrTruncated, r.off)
	}
	kind := r.buf[r.off]
	r.off++
	switch kind {
	case typeNull:
		return nil, nil
	case typeString:
		return r.ReadString()
	case typeBool:
		return r.ReadBool()
	case typeInt64:
		return r.ReadZLong()
	case typeFloat64:
		return r.ReadDouble()
	case typeList:
		n, err := r.ReadSize()
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, min(n, r.Remaining()))
		for range n {
			v, err := r.readValue(depth + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case typeMap:
		return r.readMap(depth + 1)
	default:
		return nil, fmt.Errorf("%w: marker %d at offset %d", ErrUnknownValueType, kind, r.off-1)
	}
}
