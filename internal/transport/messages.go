package transport

import (
	"fmt"

	"transformstate/internal/codec"
	"transformstate/internal/metadata"
	"transformstate/internal/wire"
)

// message is implemented by every request and response carried by the
// binary gRPC codec.
type message interface {
	marshalWire(w *wire.Writer) error
	unmarshalWire(r *wire.Reader) error
}

type GetRequest struct {
	ID string
}

func (m *GetRequest) marshalWire(w *wire.Writer) error {
	w.WriteString(m.ID)
	return nil
}

func (m *GetRequest) unmarshalWire(r *wire.Reader) (err error) {
	m.ID, err = r.ReadString()
	return err
}

// SaveRequest carries the full record, version included; the server
// performs a conditional write against that version.
type SaveRequest struct {
	Metadata metadata.TransformMetadata
}

func (m *SaveRequest) marshalWire(w *wire.Writer) error {
	return codec.WriteBinary(w, m.Metadata)
}

func (m *SaveRequest) unmarshalWire(r *wire.Reader) (err error) {
	m.Metadata, err = codec.ReadBinary(r)
	return err
}

type MergeStatsRequest struct {
	ID    string
	Delta metadata.TransformStats
}

func (m *MergeStatsRequest) marshalWire(w *wire.Writer) error {
	w.WriteString(m.ID)
	codec.WriteStatsBinary(w, m.Delta)
	return nil
}

func (m *MergeStatsRequest) unmarshalWire(r *wire.Reader) (err error) {
	if m.ID, err = r.ReadString(); err != nil {
		return err
	}
	m.Delta, err = codec.ReadStatsBinary(r)
	return err
}

type MetadataResponse struct {
	Metadata metadata.TransformMetadata
}

func (m *MetadataResponse) marshalWire(w *wire.Writer) error {
	return codec.WriteBinary(w, m.Metadata)
}

func (m *MetadataResponse) unmarshalWire(r *wire.Reader) (err error) {
	m.Metadata, err = codec.ReadBinary(r)
	return err
}

const codecName = "transformstate-bin"

// wireCodec plugs the binary form into gRPC in place of protobuf.
type wireCodec struct{}

func (wireCodec) Name() string { return codecName }

func (wireCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("transport: cannot marshal %T", v)
	}
	w := wire.NewWriter()
	if err := msg.marshalWire(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(message)
	if !ok {
		return fmt.Errorf("transport: cannot unmarshal into %T", v)
	}
	r := wire.NewReader(data)
	if err := msg.unmarshalWire(r); err != nil {
		return err
	}
	if r.Remaining() != 0 {
		return fmt.Errorf("transport: %d trailing bytes in %T", r.Remaining(), v)
	}
	return nil
}
