package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Schema statements for the decision journal tables, applied idempotently
// at startup through the clickhouse client.
func JournalSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decision_signals (
			ts DateTime64(3),
			symbol LowCardinality(String),
			strategy LowCardinality(String),
			action LowCardinality(String),
			confidence Float64,
			reason String
		) ENGINE = MergeTree ORDER BY (symbol, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decision_orders (
			ts DateTime64(3),
			order_id String,
			symbol LowCardinality(String),
			side LowCardinality(String),
			qty Float64,
			limit_price Float64,
			stop_price Float64,
			target_price Float64,
			outcome LowCardinality(String)
		) ENGINE = MergeTree ORDER BY (symbol, ts)`, database),
	}
}

type journaledSignal struct {
	ts         time.Time
	symbol     string
	strategy   string
	action     string
	confidence float64
	reason     string
}

type journaledOrder struct {
	ts          time.Time
	orderID     string
	symbol      string
	side        string
	qty         float64
	limitPrice  float64
	stopPrice   float64
	targetPrice float64
	outcome     string
}

// ClickHouseJournal buffers decisions and writes them to ClickHouse in
// batches. Journal writes are advisory; a failed flush is logged and the
// buffer dropped rather than ever pushing back on the event loop.
type ClickHouseJournal struct {
	db        *sql.DB
	database  string
	batchSize int
	log       *logger.Logger

	mu      sync.Mutex
	signals []journaledSignal
	orders  []journaledOrder

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewClickHouseJournal(db *sql.DB, database string, batchSize int, flushEvery time.Duration, log *logger.Logger) *ClickHouseJournal {
	if batchSize <= 0 {
		batchSize = 256
	}
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}
	j := &ClickHouseJournal{
		db:        db,
		database:  database,
		batchSize: batchSize,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go j.flushLoop(flushEvery)
	return j
}

func (j *ClickHouseJournal) flushLoop(every time.Duration) {
	defer close(j.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := j.Flush(ctx); err != nil {
				j.log.Warn("journal periodic flush failed", logger.Error(err))
			}
			cancel()
		}
	}
}

func (j *ClickHouseJournal) RecordSignal(ctx context.Context, s models.Signal) error {
	j.mu.Lock()
	j.signals = append(j.signals, journaledSignal{
		ts:         s.Timestamp,
		symbol:     s.Symbol,
		strategy:   s.Strategy,
		action:     string(s.Action),
		confidence: s.Confidence,
		reason:     s.Reason,
	})
	full := len(j.signals) >= j.batchSize
	j.mu.Unlock()

	if full {
		return j.Flush(ctx)
	}
	return nil
}

func (j *ClickHouseJournal) RecordOrder(ctx context.Context, o *models.Order, outcome string) error {
	rec := journaledOrder{
		ts:         o.CreatedAt,
		orderID:    o.ID,
		symbol:     o.Symbol,
		side:       string(o.Side),
		qty:        o.Qty,
		limitPrice: o.LimitPrice,
		outcome:    outcome,
	}
	if o.Bracket != nil {
		rec.stopPrice = o.Bracket.StopPrice
		rec.targetPrice = o.Bracket.TargetPrice
	}

	j.mu.Lock()
	j.orders = append(j.orders, rec)
	full := len(j.orders) >= j.batchSize
	j.mu.Unlock()

	if full {
		return j.Flush(ctx)
	}
	return nil
}

// Flush writes both buffers out. The buffers are detached under the lock so
// recording never waits on the insert.
func (j *ClickHouseJournal) Flush(ctx context.Context) error {
	j.mu.Lock()
	signals := j.signals
	orders := j.orders
	j.signals = nil
	j.orders = nil
	j.mu.Unlock()

	if err := j.insertSignals(ctx, signals); err != nil {
		return err
	}
	return j.insertOrders(ctx, orders)
}

func (j *ClickHouseJournal) insertSignals(ctx context.Context, rows []journaledSignal) error {
	if len(rows) == 0 {
		return nil
	}
	var sb strings.Builder
	args := make([]interface{}, 0, len(rows)*6)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, r.ts, r.symbol, r.strategy, r.action, r.confidence, r.reason)
	}
	q := fmt.Sprintf("INSERT INTO %s.decision_signals (ts, symbol, strategy, action, confidence, reason) VALUES %s",
		j.database, sb.String())
	if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert signals: %w", err)
	}
	return nil
}

func (j *ClickHouseJournal) insertOrders(ctx context.Context, rows []journaledOrder) error {
	if len(rows) == 0 {
		return nil
	}
	var sb strings.Builder
	args := make([]interface{}, 0, len(rows)*9)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.ts, r.orderID, r.symbol, r.side, r.qty, r.limitPrice, r.stopPrice, r.targetPrice, r.outcome)
	}
	q := fmt.Sprintf("INSERT INTO %s.decision_orders (ts, order_id, symbol, side, qty, limit_price, stop_price, target_price, outcome) VALUES %s",
		j.database, sb.String())
	if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert orders: %w", err)
	}
	return nil
}

// Close stops the flush loop and drains the remaining buffers.
func (j *ClickHouseJournal) Close() error {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return j.Flush(ctx)
}

var _ drepo.Journal = (*ClickHouseJournal)(nil)

// NopJournal satisfies the Journal capability for configurations without a
// journal backend.
type NopJournal struct{}

func (NopJournal) RecordSignal(context.Context, models.Signal) error        { return nil }
func (NopJournal) RecordOrder(context.Context, *models.Order, string) error { return nil }
func (NopJournal) Flush(context.Context) error                              { return nil }
func (NopJournal) Close() error                                             { return nil }

var _ drepo.Journal = NopJournal{}
