// Package statestore is the sink that applies replicated metadata to a
// local store.
package statestore

import (
	"context"
	"errors"
	"fmt"

	"transformstate/internal/metadata"
	"transformstate/internal/store"
	"transformstate/sink"
)

type Config struct {
	Store store.Store
}

// driver mirrors each record with an overwriting write: the feed carries
// the source node's versions, which need not line up with the local ones.
type driver struct {
	st store.Store
}

func New(st store.Store) sink.Adapter { return &driver{st: st} }

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("store-sink: expected Config, got %T", raw)
	}
	if c.Store == nil {
		return errors.New("store-sink: store is required")
	}
	d.st = c.Store
	return nil
}

func (d *driver) Push(ctx context.Context, m metadata.TransformMetadata) error {
	if m.ID == "" {
		return errors.New("store-sink: replicated record has no id")
	}
	_, err := d.st.Index(ctx, m, store.IndexOptions{Overwrite: true})
	return err
}

// Close leaves the store open; it belongs to the caller.
func (d *driver) Close() error { return nil }

func init() { sink.Register("store", func() sink.Adapter { return &driver{} }) }
