package kafka

import (
	"context"
	"fmt"

	"transformstate/internal/metadata"
)

// Position identifies a consumed message.
type Position struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (p Position) String() string { return fmt.Sprintf("%s[%d]@%d", p.Topic, p.Partition, p.Offset) }

// Record is one replicated metadata value and where it was read from.
type Record struct {
	Metadata metadata.TransformMetadata
	Position Position
}

type EmitFunc func(context.Context, Record) error

type Adapter interface {
	Configure(Config) error
	Run(context.Context, EmitFunc) error
	Close() error
}

// AckAware drivers hold offsets back until OnAck is called for them. The
// pipeline calls it once every sink has taken the record.
type AckAware interface {
	OnAck(Position)
}
