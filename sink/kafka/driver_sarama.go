package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"transformstate/internal/codec"
	"transformstate/internal/metadata"
	"transformstate/sink"
)

type Config struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	Acks    int16    `koanf:"required_acks"` // 0,1,-1
}

// driver publishes every record in binary form keyed by its id, so a
// compacted topic keeps the latest value per transform.
type driver struct {
	cfg Config
	p   sarama.SyncProducer
	bin codec.Codec
}

func newDriver(cfg Config, p sarama.SyncProducer) *driver {
	return &driver{cfg: cfg, p: p, bin: codec.Instrument(codec.BinaryCodec{})}
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return errors.New("kafka-sink: brokers and topic are required")
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	p, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	*d = *newDriver(cfg, p)
	return nil
}

func (d *driver) Push(ctx context.Context, m metadata.TransformMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := d.bin.Encode(m)
	if err != nil {
		return err
	}
	_, _, err = d.p.SendMessage(&sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(m.ID),
		Value: sarama.ByteEncoder(val),
	})
	return err
}

func (d *driver) Close() error {
	if d.p == nil {
		return nil
	}
	err := d.p.Close()
	d.p = nil
	return err
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
