package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"transformstate/internal/metadata"
	"transformstate/sink"
	"transformstate/source/kafka"
)

type captureSink struct {
	pushed []metadata.TransformMetadata
	held   []metadata.TransformMetadata
	ackFn  sink.EmitFn
	batch  bool
	fail   error
	closed bool
}

func (c *captureSink) Configure(any) error { return nil }
func (c *captureSink) Push(_ context.Context, m metadata.TransformMetadata) error {
	if c.fail != nil {
		return c.fail
	}
	c.pushed = append(c.pushed, m)
	c.held = append(c.held, m)
	if !c.batch {
		c.flush()
	}
	return nil
}
func (c *captureSink) flush() {
	for _, m := range c.held {
		if c.ackFn != nil {
			c.ackFn(m)
		}
	}
	c.held = nil
}
func (c *captureSink) Close() error           { c.closed = true; return nil }
func (c *captureSink) BindAck(fn sink.EmitFn) { c.ackFn = fn }

// plainSink has no ack callback.
type plainSink struct{ n int }

func (p *plainSink) Configure(any) error                                    { return nil }
func (p *plainSink) Push(context.Context, metadata.TransformMetadata) error { p.n++; return nil }
func (p *plainSink) Close() error                                           { return nil }

type fakeSource struct {
	records []kafka.Record
	acks    []kafka.Position
	err     error
}

func (f *fakeSource) Configure(kafka.Config) error { return nil }
func (f *fakeSource) Run(ctx context.Context, emit kafka.EmitFunc) error {
	for _, r := range f.records {
		if err := emit(ctx, r); err != nil {
			return err
		}
	}
	return f.err
}
func (f *fakeSource) Close() error           { return nil }
func (f *fakeSource) OnAck(p kafka.Position) { f.acks = append(f.acks, p) }

func rec(id string, offset int64) kafka.Record {
	m := metadata.New(id, "t", metadata.StatusStarted, metadata.TransformStats{}, time.UnixMilli(1).UTC()).WithVersion(offset, 1)
	return kafka.Record{Metadata: m, Position: kafka.Position{Topic: "transform-state", Offset: offset}}
}

func TestRunner_AcksOncePlainSinksHaveRecord(t *testing.T) {
	r := NewRunner()
	src := &fakeSource{records: []kafka.Record{rec("a", 0), rec("b", 1)}}
	r.SetSource(src)
	ps := &plainSink{}
	r.AddSink(ps)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ps.n != 2 {
		t.Fatalf("expected 2 pushes, got %d", ps.n)
	}
	if len(src.acks) != 2 || src.acks[1].Offset != 1 {
		t.Fatalf("unexpected acks: %+v", src.acks)
	}
}

func TestRunner_WaitsForEveryBatchingSink(t *testing.T) {
	r := NewRunner()
	src := &fakeSource{}
	r.SetSource(src)
	fast := &captureSink{}
	slow := &captureSink{batch: true}
	r.AddSink(fast)
	r.AddSink(slow)

	if err := r.push(context.Background(), rec("a", 5)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(src.acks) != 0 {
		t.Fatalf("ack before the batching sink flushed: %+v", src.acks)
	}
	slow.flush()
	if len(src.acks) != 1 || src.acks[0].Offset != 5 {
		t.Fatalf("unexpected acks: %+v", src.acks)
	}
	if len(r.pending) != 0 {
		t.Fatalf("pending not drained: %d", len(r.pending))
	}
}

func TestRunner_SinkErrorStopsAndForgets(t *testing.T) {
	r := NewRunner()
	src := &fakeSource{records: []kafka.Record{rec("a", 0)}}
	r.SetSource(src)
	boom := errors.New("boom")
	r.AddSink(&captureSink{batch: true})
	r.AddSink(&captureSink{fail: boom})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Wait(); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if len(r.pending) != 0 || len(src.acks) != 0 {
		t.Fatalf("failed record left state behind: pending=%d acks=%d", len(r.pending), len(src.acks))
	}
}

func TestRunner_StartRequiresSourceAndSinks(t *testing.T) {
	r := NewRunner()
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error without source")
	}
	r.SetSource(&fakeSource{})
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error without sinks")
	}
}

func TestRunner_CloseClosesSinks(t *testing.T) {
	r := NewRunner()
	r.SetSource(&fakeSource{})
	cs := &captureSink{}
	r.AddSink(cs)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !cs.closed {
		t.Fatal("sink not closed")
	}
}
