package redis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-notify/pkg/circuitbreaker"
)

// closedAddr returns a local address nothing is listening on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func unreachableBroker(t *testing.T) *RedisBroker {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        closedAddr(t),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return &RedisBroker{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-broker",
			MaxFailures: 2,
			Timeout:     time.Minute,
		}),
		logger: zerolog.Nop(),
	}
}

func TestNewRedisBroker_InvalidURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), Config{URL: "http://localhost:6379"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestNewRedisBroker_Unreachable(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), Config{URL: "redis://" + closedAddr(t), MaxRetries: -1}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestPublish_OpensBreaker(t *testing.T) {
	b := unreachableBroker(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Publish(ctx, "notifications", map[string]string{"type": "notification.job_sent"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}

	err := b.Publish(ctx, "notifications", map[string]string{"type": "notification.job_sent"})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, circuitbreaker.StateOpen, b.cb.State())
}

func TestPublish_MarshalErrorSkipsBreaker(t *testing.T) {
	b := unreachableBroker(t)

	for i := 0; i < 3; i++ {
		err := b.Publish(context.Background(), "notifications", make(chan int))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal message")
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.cb.State())
}

func TestSubscribe_Unreachable(t *testing.T) {
	b := unreachableBroker(t)

	ch, err := b.Subscribe(context.Background(), "notifications")
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.Contains(t, err.Error(), "failed to subscribe to notifications")
}
