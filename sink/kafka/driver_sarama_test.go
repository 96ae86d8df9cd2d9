package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transformstate/internal/codec"
	"transformstate/internal/metadata"
)

func TestPushSendsBinaryKeyedByID(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	p := mocks.NewSyncProducer(t, cfg)

	m := metadata.New("orders-state", "orders", metadata.StatusStarted,
		metadata.TransformStats{PagesProcessed: 3}, time.UnixMilli(1_700_000_000_000).UTC()).WithVersion(4, 1)

	p.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "orders-state", string(key))
		assert.Equal(t, "transform-state", msg.Topic)

		val, err := msg.Value.Encode()
		require.NoError(t, err)
		got, err := codec.BinaryCodec{}.Decode(val, codec.Version{})
		require.NoError(t, err)
		assert.True(t, got.Equal(m))
		return nil
	})

	d := newDriver(Config{Topic: "transform-state"}, p)
	require.NoError(t, d.Push(context.Background(), m))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestConfigureRejectsIncompleteConfig(t *testing.T) {
	d := &driver{}
	assert.Error(t, d.Configure(Config{Topic: "t"}))
	assert.Error(t, d.Configure("nope"))
}

func TestPushHonoursCancelledContext(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	d := newDriver(Config{Topic: "t"}, p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Push(ctx, metadata.TransformMetadata{ID: "x"}), context.Canceled)
	require.NoError(t, d.Close())
}
