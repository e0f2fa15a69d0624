package notify

import (
	"context"
	"encoding/json"
	"time"

	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes alerts to a Redis pub/sub channel. Delivery is
// fire-and-forget: a failed publish is logged and swallowed so a broken
// notification path can never block trading.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewRedisNotifier(addr, password string, db int, channel string, log *logger.Logger) *RedisNotifier {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &RedisNotifier{client: client, channel: channel, log: log}
}

type alert struct {
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

func (n *RedisNotifier) Notify(ctx context.Context, message string, severity drepo.Severity) {
	payload, err := json.Marshal(alert{
		Message:   message,
		Severity:  string(severity),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		n.log.Warn("notifier marshal failed", logger.Error(err))
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.log.Warn("notifier publish failed",
			logger.String("channel", n.channel),
			logger.Error(err))
		return
	}
	n.log.Debug("alert published",
		logger.String("severity", string(severity)),
		logger.String("message", message))
}

func (n *RedisNotifier) Close() error { return n.client.Close() }

var _ drepo.Notifier = (*RedisNotifier)(nil)

// LogNotifier writes alerts to the log only, for runs without Redis.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, message string, severity drepo.Severity) {
	switch severity {
	case drepo.SeverityCritical, drepo.SeverityHigh:
		n.log.Error("alert", logger.String("severity", string(severity)), logger.String("message", message))
	default:
		n.log.Info("alert", logger.String("severity", string(severity)), logger.String("message", message))
	}
}

var _ drepo.Notifier = (*LogNotifier)(nil)
