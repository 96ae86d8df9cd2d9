// Package pipeline moves replicated metadata from a source to sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"transformstate/internal/logging"
	"transformstate/internal/metadata"
	"transformstate/internal/telemetry"
	"transformstate/sink"
	"transformstate/source/kafka"
)

type recordKey struct {
	id          string
	seqNo       int64
	primaryTerm int64
}

func keyOf(m metadata.TransformMetadata) recordKey {
	return recordKey{id: m.ID, seqNo: m.SeqNo, primaryTerm: m.PrimaryTerm}
}

// inflight is a record still held by at least one batching sink.
type inflight struct {
	pos     kafka.Position
	waiting int
}

type Runner struct {
	source kafka.Adapter
	sinks  []sink.Adapter
	log    *slog.Logger

	mu       sync.Mutex
	subs     []func(kafka.Position)
	ackAware int
	pending  map[recordKey][]*inflight

	done chan struct{}
	err  error
}

func NewRunner() *Runner {
	return &Runner{log: logging.For("pipeline"), pending: map[recordKey][]*inflight{}}
}

// AddSink registers s. Sinks that batch get their ack callback bound here.
func (r *Runner) AddSink(s sink.Adapter) {
	if aw, ok := s.(sink.AckAware); ok {
		aw.BindAck(r.sinkAck)
		r.ackAware++
	}
	r.sinks = append(r.sinks, s)
}

// SetSource sets the feed. An ack-aware source is subscribed so its offsets
// advance once every sink has the record.
func (r *Runner) SetSource(s kafka.Adapter) {
	r.source = s
	if aw, ok := s.(kafka.AckAware); ok {
		r.SubscribeAck(aw.OnAck)
	}
}

func (r *Runner) SubscribeAck(fn func(kafka.Position)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

func (r *Runner) ack(pos kafka.Position) {
	r.mu.Lock()
	handlers := append([]func(kafka.Position){}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(pos)
	}
}

// sinkAck is bound to batching sinks. The oldest matching record is
// credited, so replays of the same version resolve in order.
func (r *Runner) sinkAck(m metadata.TransformMetadata) {
	k := keyOf(m)
	r.mu.Lock()
	q := r.pending[k]
	if len(q) == 0 {
		r.mu.Unlock()
		return
	}
	head := q[0]
	head.waiting--
	if head.waiting > 0 {
		r.mu.Unlock()
		return
	}
	if len(q) == 1 {
		delete(r.pending, k)
	} else {
		r.pending[k] = q[1:]
	}
	r.mu.Unlock()
	r.ack(head.pos)
}

func (r *Runner) push(ctx context.Context, rec kafka.Record) error {
	var held *inflight
	if r.ackAware > 0 {
		held = &inflight{pos: rec.Position, waiting: r.ackAware}
		r.mu.Lock()
		k := keyOf(rec.Metadata)
		r.pending[k] = append(r.pending[k], held)
		r.mu.Unlock()
	}
	for _, s := range r.sinks {
		if err := s.Push(ctx, rec.Metadata); err != nil {
			r.forget(keyOf(rec.Metadata), held)
			return fmt.Errorf("sink push %s: %w", rec.Position, err)
		}
	}
	telemetry.ReplicatedUpdates.Inc()
	r.log.Debug("replicated", "id", rec.Metadata.ID, "seq_no", rec.Metadata.SeqNo, "position", rec.Position.String())
	if r.ackAware == 0 {
		r.ack(rec.Position)
	}
	return nil
}

func (r *Runner) forget(k recordKey, held *inflight) {
	if held == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.pending[k]
	for i, f := range q {
		if f == held {
			q = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	if len(q) == 0 {
		delete(r.pending, k)
	} else {
		r.pending[k] = q
	}
}

// Start runs the source in the background until ctx ends or it fails.
func (r *Runner) Start(ctx context.Context) error {
	if r.source == nil {
		return errors.New("runner: no source configured")
	}
	if len(r.sinks) == 0 {
		return errors.New("runner: no sinks configured")
	}
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		err := r.source.Run(ctx, r.push)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error("replication source stopped", "err", err)
			r.err = err
		}
	}()
	return nil
}

// Wait blocks until a started runner's source returns.
func (r *Runner) Wait() error {
	if r.done == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Close stops the source then flushes and closes the sinks.
func (r *Runner) Close() error {
	var errs []error
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
