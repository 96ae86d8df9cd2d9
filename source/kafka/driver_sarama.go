package kafka

import (
	"context"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"transformstate/internal/codec"
	"transformstate/internal/logging"
)

// SaramaDriver consumes binary-encoded metadata from a consumer group.
type SaramaDriver struct {
	cfg   Config
	cl    sarama.Client
	group sarama.ConsumerGroup
	bp    *Controller
	clock *commitClock
	bin   codec.Codec
	log   *slog.Logger

	mu      sync.Mutex
	pending map[Position]func()

	ackCh chan Position
}

func init() { Register("sarama", func() Adapter { return &SaramaDriver{} }) }

// prepare sets up everything except the broker connection.
func (d *SaramaDriver) prepare(config Config) {
	applyDefaults(&config)
	d.cfg = config
	d.pending = make(map[Position]func())
	d.bp = NewController(config.BackPressure.Capacity)
	d.clock = newCommitClock(config.Checkpoint.CommitInt)
	d.ackCh = make(chan Position, int(config.BackPressure.Capacity))
	d.bin = codec.Instrument(codec.BinaryCodec{})
	d.log = logging.For("kafka-source")
}

func (d *SaramaDriver) Configure(config Config) error {
	d.prepare(config)

	ver, err := sarama.ParseKafkaVersion(d.cfg.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	if d.cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if d.cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = d.cfg.SASLUser, d.cfg.SASLPass
	}
	switch d.cfg.StartFrom {
	case "newest":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	if d.cl, err = sarama.NewClient(d.cfg.Brokers, sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(d.cfg.GroupID, d.cl)
	return err
}

func (d *SaramaDriver) Run(ctx context.Context, emit EmitFunc) error {
	handler := &groupHandler{driver: d, emit: emit}
	go func() {
		for err := range d.group.Errors() {
			d.log.Warn("consumer group error", "err", err)
		}
	}()

	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *SaramaDriver) Close() error {
	if d.group != nil {
		_ = d.group.Close()
	}
	if d.cl != nil {
		_ = d.cl.Close()
	}
	if d.bp != nil {
		d.bp.Close()
	}
	return nil
}

// OnAck releases the offset held for pos in e2e mode. It never blocks; when
// the channel is full the oldest queued ack is dropped.
func (d *SaramaDriver) OnAck(pos Position) {
	select {
	case d.ackCh <- pos:
		return
	default:
	}
	select {
	case <-d.ackCh:
	default:
	}
	select {
	case d.ackCh <- pos:
	default:
		d.log.Warn("ack channel full; dropping ack", "position", pos.String())
	}
}

// resolve runs the held callback for pos and frees its token.
func (d *SaramaDriver) resolve(pos Position) {
	d.mu.Lock()
	cb, ok := d.pending[pos]
	if ok {
		delete(d.pending, pos)
	}
	d.mu.Unlock()
	if ok {
		cb()
		d.bp.Release(1)
	}
}

func (d *SaramaDriver) mark(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	sess.MarkMessage(msg, "")
	if d.clock.due() {
		sess.Commit()
	}
}

type groupHandler struct {
	driver *SaramaDriver
	emit   EmitFunc
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup drops callbacks for partitions this member no longer owns; the
// next owner re-reads from the last committed offset.
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	d := h.driver
	d.mu.Lock()
	dropped := len(d.pending)
	d.pending = make(map[Position]func())
	d.mu.Unlock()
	if dropped > 0 {
		d.bp.Release(int64(dropped))
		d.log.Info("rebalance cleared pending callbacks", "count", dropped)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	d := h.driver
	ctx := sess.Context()
	for {
		if !d.bp.TryAcquire(1) {
			// full: only an ack can make room
			select {
			case pos := <-d.ackCh:
				d.resolve(pos)
				continue
			case <-ctx.Done():
				return nil
			}
		}

		select {
		case <-ctx.Done():
			d.bp.Release(1)
			return nil

		case pos := <-d.ackCh:
			d.bp.Release(1)
			d.resolve(pos)

		case msg, ok := <-claim.Messages():
			if !ok {
				d.bp.Release(1)
				return nil
			}
			if err := h.handle(ctx, sess, msg); err != nil {
				d.bp.Release(1)
				return err
			}
		}
	}
}

// handle decodes and emits one message. The caller's token is released
// here on success, or held until OnAck in e2e mode.
func (h *groupHandler) handle(ctx context.Context, sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	d := h.driver
	pos := Position{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset}

	m, err := d.bin.Decode(msg.Value, codec.Version{})
	if err != nil {
		d.log.Warn("skipping undecodable record", "position", pos.String(), "err", err)
		d.mark(sess, msg)
		d.bp.Release(1)
		return nil
	}

	if d.cfg.CommitMode != CommitE2E {
		if err := h.emit(ctx, Record{Metadata: m, Position: pos}); err != nil {
			return err
		}
		d.mark(sess, msg)
		d.bp.Release(1)
		return nil
	}

	// registered before emit so a synchronous ack finds it
	d.mu.Lock()
	d.pending[pos] = func() { d.mark(sess, msg) }
	d.mu.Unlock()
	if err := h.emit(ctx, Record{Metadata: m, Position: pos}); err != nil {
		d.mu.Lock()
		delete(d.pending, pos)
		d.mu.Unlock()
		return err
	}
	return nil
}
