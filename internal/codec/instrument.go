package codec

import (
	"transformstate/internal/metadata"
	"transformstate/internal/telemetry"
)

type instrumented struct {
	Codec
}

// Instrument counts encode/decode calls and failures of c in the process
// metrics registry.
func Instrument(c Codec) Codec { return instrumented{Codec: c} }

func (c instrumented) Encode(m metadata.TransformMetadata) ([]byte, error) {
	telemetry.CodecOps.WithLabelValues(c.Name(), "encode").Inc()
	b, err := c.Codec.Encode(m)
	if err != nil {
		telemetry.CodecErrors.WithLabelValues(c.Name(), "encode").Inc()
	}
	return b, err
}

func (c instrumented) Decode(data []byte, v Version) (metadata.TransformMetadata, error) {
	telemetry.CodecOps.WithLabelValues(c.Name(), "decode").Inc()
	m, err := c.Codec.Decode(data, v)
	if err != nil {
		telemetry.CodecErrors.WithLabelValues(c.Name(), "decode").Inc()
	}
	return m, err
}
