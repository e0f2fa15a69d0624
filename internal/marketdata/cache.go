// Package marketdata holds the rolling per-symbol tick windows strategies
// read from. Strategies need historical context (VWAP, ranges, dispersion)
// without touching the broker API on the hot path.
package marketdata

import (
	"math"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
)

// DefaultWindowSize is the per-symbol tick retention cap.
const DefaultWindowSize = 1000

// ring is a fixed-capacity FIFO. Append is O(1); once full the oldest entry
// is overwritten.
type ring[T any] struct {
	buf   []T
	head  int // next write slot
	count int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring[T]) len() int { return r.count }

// at returns the i-th element with 0 = oldest retained.
func (r *ring[T]) at(i int) T {
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	return r.buf[(start+i)%len(r.buf)]
}

func (r *ring[T]) last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.at(r.count - 1), true
}

// symbolWindow owns one symbol's history. Each window carries its own lock
// so two symbols never contend.
type symbolWindow struct {
	mu     sync.RWMutex
	trades *ring[models.Trade]
	quotes *ring[models.Quote]
}

// Cache is the rolling market data store. Writes never fail and never
// validate: invalid prices are stored as-is, rejection is the caller's
// concern. Out-of-order ticks are accepted; lookback queries then lose
// strict recency, which is tolerated rather than corrected.
type Cache struct {
	windowSize int

	mu      sync.RWMutex
	windows map[string]*symbolWindow
}

// New creates a cache retaining up to windowSize trades and quotes per
// symbol. Non-positive sizes fall back to DefaultWindowSize.
func New(windowSize int) *Cache {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Cache{
		windowSize: windowSize,
		windows:    make(map[string]*symbolWindow),
	}
}

func (c *Cache) window(symbol string) *symbolWindow {
	c.mu.RLock()
	w, ok := c.windows[symbol]
	c.mu.RUnlock()
	if ok {
		return w
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok = c.windows[symbol]; ok {
		return w
	}
	w = &symbolWindow{
		trades: newRing[models.Trade](c.windowSize),
		quotes: newRing[models.Quote](c.windowSize),
	}
	c.windows[symbol] = w
	return w
}

// lookup returns the window without creating one.
func (c *Cache) lookup(symbol string) (*symbolWindow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.windows[symbol]
	return w, ok
}

// AddTrade stores an incoming trade tick. O(1), never fails.
func (c *Cache) AddTrade(symbol string, price, size float64, ts time.Time) {
	w := c.window(symbol)
	w.mu.Lock()
	w.trades.push(models.Trade{Symbol: symbol, Price: price, Size: size, Timestamp: ts})
	w.mu.Unlock()
}

// AddQuote stores an incoming quote tick. O(1), never fails.
func (c *Cache) AddQuote(symbol string, bid, ask, bidSize, askSize float64, ts time.Time) {
	w := c.window(symbol)
	w.mu.Lock()
	w.quotes.push(models.Quote{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Timestamp: ts,
	})
	w.mu.Unlock()
}

// TradeCount returns the number of retained trades for symbol.
func (c *Cache) TradeCount(symbol string) int {
	w, ok := c.lookup(symbol)
	if !ok {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trades.len()
}

// LastTrade returns the most recent trade tick.
func (c *Cache) LastTrade(symbol string) (models.Trade, bool) {
	w, ok := c.lookup(symbol)
	if !ok {
		return models.Trade{}, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trades.last()
}

// LastPrice returns the most recent trade price.
func (c *Cache) LastPrice(symbol string) (float64, bool) {
	t, ok := c.LastTrade(symbol)
	if !ok {
		return 0, false
	}
	return t.Price, true
}

// LastQuote returns the most recent quote.
func (c *Cache) LastQuote(symbol string) (models.Quote, bool) {
	w, ok := c.lookup(symbol)
	if !ok {
		return models.Quote{}, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.quotes.last()
}

// VWAP computes the volume-weighted average price over trades within the
// lookback window ending at the most recent trade's timestamp, not
// wall-clock now. Returns false if no trade falls in the window or total
// volume is zero.
func (c *Cache) VWAP(symbol string, lookback time.Duration) (float64, bool) {
	w, ok := c.lookup(symbol)
	if !ok {
		return 0, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	newest, ok := w.trades.last()
	if !ok {
		return 0, false
	}
	cutoff := newest.Timestamp.Add(-lookback)

	var value, volume float64
	for i := 0; i < w.trades.len(); i++ {
		t := w.trades.at(i)
		if t.Timestamp.Before(cutoff) {
			continue
		}
		value += t.Price * t.Size
		volume += t.Size
	}
	if volume <= 0 {
		return 0, false
	}
	return value / volume, true
}

// PriceChangePct returns (latest-oldest)/oldest over trades in the lookback
// window anchored at the newest trade. Requires at least two trades in the
// window.
func (c *Cache) PriceChangePct(symbol string, lookback time.Duration) (float64, bool) {
	w, ok := c.lookup(symbol)
	if !ok {
		return 0, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	newest, ok := w.trades.last()
	if !ok {
		return 0, false
	}
	cutoff := newest.Timestamp.Add(-lookback)

	var first, last float64
	n := 0
	for i := 0; i < w.trades.len(); i++ {
		t := w.trades.at(i)
		if t.Timestamp.Before(cutoff) {
			continue
		}
		if n == 0 {
			first = t.Price
		}
		last = t.Price
		n++
	}
	if n < 2 || first == 0 {
		return 0, false
	}
	return (last - first) / first, true
}

// SpreadBps returns the current bid-ask spread in basis points from the
// latest quote. Wide spreads mean high transaction cost and thin liquidity.
func (c *Cache) SpreadBps(symbol string) (float64, bool) {
	q, ok := c.LastQuote(symbol)
	if !ok || q.Bid == 0 {
		return 0, false
	}
	return (q.Ask - q.Bid) / q.Bid * 10000, true
}

// PeriodHighLow returns the high and low over the most recent `periods`
// trades excluding the newest one, so the newest trade can be compared
// against its own preceding range. Including the current trade would make
// breakouts structurally undetectable.
func (c *Cache) PeriodHighLow(symbol string, periods int) (high, low float64, ok bool) {
	w, found := c.lookup(symbol)
	if !found || periods <= 0 {
		return 0, 0, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := w.trades.len()
	if n < periods+1 {
		return 0, 0, false
	}

	high = math.Inf(-1)
	low = math.Inf(1)
	for i := n - 1 - periods; i < n-1; i++ {
		p := w.trades.at(i).Price
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
	}
	return high, low, true
}

// AvgVolume returns the mean trade size over the most recent `periods`
// trades excluding the newest one, pairing with PeriodHighLow for breakout
// volume confirmation.
func (c *Cache) AvgVolume(symbol string, periods int) (float64, bool) {
	w, found := c.lookup(symbol)
	if !found || periods <= 0 {
		return 0, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := w.trades.len()
	if n < periods+1 {
		return 0, false
	}

	var sum float64
	for i := n - 1 - periods; i < n-1; i++ {
		sum += w.trades.at(i).Size
	}
	return sum / float64(periods), true
}

// Prices returns up to n most recent trade prices, oldest first. n <= 0
// returns everything retained.
func (c *Cache) Prices(symbol string, n int) []float64 {
	w, ok := c.lookup(symbol)
	if !ok {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	total := w.trades.len()
	if n <= 0 || n > total {
		n = total
	}
	out := make([]float64, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, w.trades.at(i).Price)
	}
	return out
}

// Stats summarizes all stored trade prices for z-score and volatility-based
// sizing. StdDev is the population standard deviation.
func (c *Cache) Stats(symbol string) models.Stats {
	w, ok := c.lookup(symbol)
	if !ok {
		return models.Stats{}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := w.trades.len()
	if n == 0 {
		return models.Stats{}
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += w.trades.at(i).Price
	}
	mean := sum / float64(n)

	var ss float64
	for i := 0; i < n; i++ {
		d := w.trades.at(i).Price - mean
		ss += d * d
	}

	return models.Stats{
		Mean:   mean,
		StdDev: math.Sqrt(ss / float64(n)),
		Count:  n,
	}
}
