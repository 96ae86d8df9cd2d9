package engine

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transformstate/internal/config"
	"transformstate/internal/metadata"
	"transformstate/internal/transport"
)

func TestBootstrapServesMetadataOverGRPC(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Config{}
	cfg.Update.Attempts = 2
	e, err := Bootstrap(ctx, cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	created, err := e.Service().Create(ctx, "orders-state", "orders", false)
	require.NoError(t, err)

	port := e.transport.Addr().(*net.TCPAddr).Port
	c, err := transport.Dial(fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer c.Close()

	rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
	defer rcancel()
	got, err := c.MergeStats(rctx, created.ID, metadata.TransformStats{DocumentsProcessed: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Stats.DocumentsProcessed)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestBootstrapRejectsUnknownSink(t *testing.T) {
	cfg := config.Config{}
	cfg.Publish.Sinks = []string{"carrier-pigeon"}
	_, err := Bootstrap(context.Background(), cfg)
	assert.ErrorContains(t, err, "carrier-pigeon")
}
