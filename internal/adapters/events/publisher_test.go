package events

import (
	"context"
	"encoding/json"
	"stop-sequencing-service/internal/domain"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, ChannelName("r1"))
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	evt := domain.RouteEvent{
		Type:           "route.optimized",
		RouteID:        "r1",
		RunID:          "run-1",
		Status:         "optimized",
		OrderedStopIDs: []string{"b", "a"},
		Version:        2,
		At:             time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, NewRedisPublisher(rdb).Publish(ctx, "r1", evt))

	select {
	case msg := <-sub.Channel():
		require.Equal(t, "route:r1", msg.Channel)
		var got domain.RouteEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		require.Equal(t, evt, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), "r9", domain.RouteEvent{Type: "route.shuffled", Version: 3}))

	entries := logs.FilterMessage("route event").All()
	require.Len(t, entries, 1)
	require.Equal(t, "route:r9", entries[0].ContextMap()["channel"])
	require.Equal(t, "route.shuffled", entries[0].ContextMap()["type"])
}
