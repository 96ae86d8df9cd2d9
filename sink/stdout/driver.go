package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"transformstate/internal/codec"
	"transformstate/internal/document"
	"transformstate/internal/metadata"
	"transformstate/sink"
)

type Config struct {
	Format       string `koanf:"format"`        // json (default) or yaml
	PrintCounter bool   `koanf:"print_counter"` // prepend seq#
	BatchSize    int    `koanf:"batch_size"`    // 0 = write through
	FlushMS      int    `koanf:"flush_ms"`      // 0 = disabled
}

type driver struct {
	cfg Config
	out io.Writer
	doc codec.Codec
	ack sink.EmitFn

	mu      sync.Mutex // guards pending+timer
	pending []metadata.TransformMetadata
	timer   *time.Timer // nil means no timer armed
}

var seq uint64

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	ct := document.JSON
	if c.Format != "" {
		var err error
		if ct, err = document.ParseContentType(c.Format); err != nil {
			return fmt.Errorf("stdout-sink: %w", err)
		}
	}
	d.cfg = c
	d.doc = codec.NewDocumentCodec(ct)
	if d.out == nil {
		d.out = os.Stdout
	}
	return nil
}

func (d *driver) Push(_ context.Context, m metadata.TransformMetadata) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, m)

	// flush on batch size, or immediately when batching is off
	if d.cfg.BatchSize <= 0 || len(d.pending) >= d.cfg.BatchSize {
		return d.flushLocked()
	}

	// (re)-arm the one-shot timer if needed
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(time.Duration(d.cfg.FlushMS)*time.Millisecond, d.timerFlush)
	}
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked()
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

// called by the background timer goroutine
func (d *driver) timerFlush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.flushLocked()
}

// must be called with d.mu held
func (d *driver) flushLocked() error {
	defer d.stopTimerLocked()
	for i, m := range d.pending {
		body, err := d.doc.Encode(m)
		if err != nil {
			d.pending = d.pending[i:]
			return err
		}
		if d.cfg.PrintCounter {
			fmt.Fprintf(d.out, "[sink %06d] ", atomic.AddUint64(&seq, 1))
		}
		fmt.Fprintf(d.out, "%s %s\n", m.ID, body)
		if d.ack != nil {
			d.ack(m)
		}
	}
	d.pending = d.pending[:0]
	return nil
}

func (d *driver) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
