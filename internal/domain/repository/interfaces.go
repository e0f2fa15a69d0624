package repository

import (
	"context"
	"time"

	"TradePulse/internal/domain/models"
)

// Broker is the execution venue capability. Calls may fail transiently; the
// engine retries account/clock reads once and surfaces repeated failure as a
// health warning. Fills are never assumed synchronous.
type Broker interface {
	GetAccount(ctx context.Context) (models.AccountSnapshot, error)
	GetClock(ctx context.Context) (models.Clock, error)
	ListPositions(ctx context.Context) ([]models.BrokerPosition, error)
	SubmitOrder(ctx context.Context, o *models.Order) (string, error)
	CancelAllOrders(ctx context.Context) error
	ClosePosition(ctx context.Context, symbol string) error
}

// MarketStream is the push-based tick feed. Reconnection policy belongs to
// the implementation; the engine only requests a reconnect when the health
// monitor detects silence.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan *models.Quote, <-chan error)
	Fills(ctx context.Context) <-chan *models.Fill
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Severity grades Notifier messages.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Notifier delivers out-of-band alerts. Fire-and-forget: implementations
// swallow and log their own failures, and must never block trading.
type Notifier interface {
	Notify(ctx context.Context, message string, severity Severity)
}

// Journal records decisions for post-session analysis. Optional; a nil-safe
// no-op implementation exists for configurations without a journal backend.
type Journal interface {
	RecordSignal(ctx context.Context, s models.Signal) error
	RecordOrder(ctx context.Context, o *models.Order, outcome string) error
	Flush(ctx context.Context) error
	Close() error
}

// Metrics is the observability recorder the engine writes to.
type Metrics interface {
	RecordTick(symbol string)
	RecordLastPrice(symbol string, price float64)
	RecordSignal(strategy string, action string)
	RecordOrder(symbol string, side string)
	RecordRejection(reason string)
	RecordDailyPnL(v float64)
	RecordBreaker(tripped bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordSessionState(state string)
}

// StalenessThreshold is the feed-silence window after which the health
// monitor requests a reconnect.
const StalenessThreshold = 5 * time.Minute
