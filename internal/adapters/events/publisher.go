package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"stop-sequencing-service/internal/domain"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelName is the pub/sub channel carrying a route's events.
func ChannelName(routeID string) string { return "route:" + routeID }

// RedisPublisher publishes route events over Redis pub/sub.
type RedisPublisher struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, timeout: 2 * time.Second}
}

func (p *RedisPublisher) Publish(ctx context.Context, routeID string, evt domain.RouteEvent) error {
	if p.rdb == nil {
		return errors.New("publish route event: redis client is nil")
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("publish route event: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, ChannelName(routeID), data).Err(); err != nil {
		return fmt.Errorf("publish route event to %s: %w", ChannelName(routeID), err)
	}
	return nil
}

// LogPublisher writes route events to the log when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, routeID string, evt domain.RouteEvent) error {
	p.logger.Info("route event",
		zap.String("channel", ChannelName(routeID)),
		zap.String("type", evt.Type),
		zap.String("run_id", evt.RunID),
		zap.String("status", evt.Status),
		zap.Int("version", evt.Version),
		zap.Int("stops", len(evt.OrderedStopIDs)),
	)
	return nil
}
