package mqtt

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaiede/RPiLight-sub000/pkg/config"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T, timeout time.Duration) *pahoClient {
	t.Helper()
	cfg := config.NewConfig()
	cfg.ServiceName = "tank"
	cfg.MQTTBroker = "127.0.0.1"
	cfg.MQTTPort = 1

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c, ok := NewClient(cfg, logger).(*pahoClient)
	require.True(t, ok)
	c.connectTimeout = timeout
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnectGivesUpAfterTimeout(t *testing.T) {
	c := unreachableClient(t, 200*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("Connect did not return with the broker down")
	}
	assert.False(t, c.IsConnected())
}

func TestConnectHonoursCancellation(t *testing.T) {
	c := unreachableClient(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSubscribeWhileDisconnectedIsDeferred(t *testing.T) {
	c := unreachableClient(t, 100*time.Millisecond)

	err := c.Subscribe(CommandTopic("tank"), 1, func(Message) {})
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions["rpilight/tank/command"]
	require.True(t, ok)
	assert.Equal(t, byte(1), sub.qos)
}
