package ledger

import (
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/risk"
	"TradePulse/pkg/logger"
)

// Ledger tracks submitted orders and open positions for one trading session.
// It is mutated only from the event loop; the read lock exists for the
// status API, which observes it from request goroutines.
type Ledger struct {
	mu          sync.RWMutex
	orders      map[string]*models.Order
	positions   map[string]*models.Position
	lastSignal  map[string]time.Time
	recent      []models.Signal
	breaker     *risk.CircuitBreaker
	log         *logger.Logger
	fillsSeen   int
	ordersTotal int
}

// recentSignalCap bounds the in-memory decision history served by the
// status API.
const recentSignalCap = 64

func New(breaker *risk.CircuitBreaker, log *logger.Logger) *Ledger {
	return &Ledger{
		orders:     make(map[string]*models.Order),
		positions:  make(map[string]*models.Position),
		lastSignal: make(map[string]time.Time),
		breaker:    breaker,
		log:        log,
	}
}

// BuildBracket derives the protective exit prices from the entry. A long
// entry places the stop below and the target above; a short is symmetric.
func BuildBracket(side models.Side, entry, stopLossPct, takeProfitPct float64) *models.Bracket {
	if side == models.SideSell {
		return &models.Bracket{
			StopPrice:   entry * (1 + stopLossPct),
			TargetPrice: entry * (1 - takeProfitPct),
		}
	}
	return &models.Bracket{
		StopPrice:   entry * (1 - stopLossPct),
		TargetPrice: entry * (1 + takeProfitPct),
	}
}

// RecordSubmission registers an accepted order. The position is not touched
// until a fill arrives.
func (l *Ledger) RecordSubmission(o *models.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o.Status = models.OrderSubmitted
	l.orders[o.ID] = o
	l.ordersTotal++
}

// RecordFill applies an execution to the order lifecycle and the position.
// Same-direction fills move the average entry price by weighted average
// cost; opposite-direction fills reduce, close, or flip the position.
func (l *Ledger) RecordFill(f *models.Fill) {
	// a fill without quantity carries no information and would poison the
	// weighted average with a zero divisor
	if f.Qty <= 0 {
		l.log.Warn("ignoring fill with non-positive quantity",
			logger.String("order_id", f.OrderID),
			logger.Float64("qty", f.Qty))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.fillsSeen++

	if o, ok := l.orders[f.OrderID]; ok {
		o.FilledQty += f.Qty
		if o.FilledQty >= o.Qty {
			o.Status = models.OrderFilled
		} else {
			o.Status = models.OrderPartiallyFilled
		}
	}

	delta := f.Qty
	if f.Side == models.SideSell {
		delta = -f.Qty
	}

	pos, ok := l.positions[f.Symbol]
	if !ok {
		l.positions[f.Symbol] = &models.Position{
			Symbol:        f.Symbol,
			Qty:           delta,
			AvgEntryPrice: f.Price,
		}
		return
	}

	switch {
	case pos.Qty == 0 || sameSign(pos.Qty, delta):
		// weighted average cost on accumulation
		total := pos.Qty + delta
		pos.AvgEntryPrice = (pos.AvgEntryPrice*abs(pos.Qty) + f.Price*abs(delta)) / abs(total)
		pos.Qty = total
	case abs(delta) < abs(pos.Qty):
		// partial close keeps the entry basis
		pos.Qty += delta
	case abs(delta) == abs(pos.Qty):
		delete(l.positions, f.Symbol)
	default:
		// flip: the remainder opens a new position at the fill price
		pos.Qty += delta
		pos.AvgEntryPrice = f.Price
	}
}

// CancelOpen marks every open order cancelled and returns how many were.
func (l *Ledger) CancelOpen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, o := range l.orders {
		if o.Open() {
			o.Status = models.OrderCancelled
			n++
		}
	}
	return n
}

// Position returns a copy of the tracked position for symbol.
func (l *Ledger) Position(symbol string) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *pos, true
}

// Positions returns a snapshot of all open positions.
func (l *Ledger) Positions() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out
}

// OpenOrders returns copies of orders still able to receive fills.
func (l *Ledger) OpenOrders() []models.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, o := range l.orders {
		if o.Open() {
			out = append(out, *o)
		}
	}
	return out
}

// DailyPnL computes the session P&L from a fresh equity reading against the
// start-of-day baseline. It is never accumulated incrementally, so missed
// fills cannot make it drift.
func (l *Ledger) DailyPnL(freshEquity float64) float64 {
	return freshEquity - l.breaker.StartOfDayEquity()
}

// Reconcile adopts broker-reported positions the ledger does not know about.
// The broker is the source of truth; an untracked position is logged and
// mirrored locally, never discarded. Returns the number adopted.
func (l *Ledger) Reconcile(brokerPositions []models.BrokerPosition) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	adopted := 0
	for _, bp := range brokerPositions {
		if _, ok := l.positions[bp.Symbol]; ok {
			continue
		}
		l.log.Warn("untracked position found, adopting broker state",
			logger.String("symbol", bp.Symbol),
			logger.Float64("qty", bp.Qty),
			logger.Float64("avg_entry", bp.AvgEntryPrice))
		l.positions[bp.Symbol] = &models.Position{
			Symbol:        bp.Symbol,
			Qty:           bp.Qty,
			AvgEntryPrice: bp.AvgEntryPrice,
		}
		adopted++
	}
	return adopted
}

// MarkSignal records when symbol last produced an actionable signal, for
// cooldown enforcement.
func (l *Ledger) MarkSignal(symbol string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSignal[symbol] = at
	if pos, ok := l.positions[symbol]; ok {
		pos.LastSignalTime = at
	}
}

// LastSignalAt returns when symbol last produced an actionable signal.
func (l *Ledger) LastSignalAt(symbol string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.lastSignal[symbol]
	return t, ok
}

// RecordSignal appends one strategy decision to the bounded history.
func (l *Ledger) RecordSignal(sig models.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recent = append(l.recent, sig)
	if len(l.recent) > recentSignalCap {
		l.recent = append(l.recent[:0], l.recent[len(l.recent)-recentSignalCap:]...)
	}
}

// RecentSignals returns the decision history, newest first.
func (l *Ledger) RecentSignals() []models.Signal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Signal, len(l.recent))
	for i, sig := range l.recent {
		out[len(l.recent)-1-i] = sig
	}
	return out
}

// Counters returns lifetime order and fill counts for the status API.
func (l *Ledger) Counters() (orders, fills int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ordersTotal, l.fillsSeen
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
