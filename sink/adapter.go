package sink

import (
	"context"
	"fmt"
	"sort"

	"transformstate/internal/metadata"
)

// EmitFn is what a sink calls to tell the pipeline that a record has been
// durably handed off.
type EmitFn func(metadata.TransformMetadata)

// Adapter is the common behaviour every sink exposes. Adapters satisfy
// store.Publisher.
type Adapter interface {
	Configure(any) error // driver-specific config struct
	Push(ctx context.Context, m metadata.TransformMetadata) error
	Close() error // idempotent
}

// AckAware is optional; sinks that batch implement it so the pipeline
// learns when a record left the buffer.
type AckAware interface {
	BindAck(EmitFn)
}

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

// Names lists registered drivers.
func Names() []string {
	out := make([]string, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
