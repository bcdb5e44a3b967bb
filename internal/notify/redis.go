package notify

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "posclient:signals"

// Redis publishes signals as JSON on a pub/sub channel so a second screen or
// a back-office dashboard can follow the terminal's sync state.
type Redis struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

func NewRedis(addr string, password string, db int, channel string, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisWithClient(client, channel, logger)
}

func newRedisWithClient(client *redis.Client, channel string, logger *zap.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, channel: channel, timeout: 2 * time.Second, logger: logger}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Channel() string { return r.channel }

func (r *Redis) Emit(ctx context.Context, signal Signal) {
	payload, err := json.Marshal(signal)
	if err != nil {
		r.logger.Warn("encode signal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("publish signal failed", zap.String("kind", string(signal.Kind)), zap.Error(err))
	}
}
