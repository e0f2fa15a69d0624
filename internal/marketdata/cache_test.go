package marketdata

import (
	"math"
	"testing"
	"time"
)

func ts(sec int) time.Time {
	return time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
}

func TestWindowEviction(t *testing.T) {
	c := New(5)
	for i := 0; i < 12; i++ {
		c.AddTrade("AAPL", 100+float64(i), 10, ts(i))
	}
	if got := c.TradeCount("AAPL"); got != 5 {
		t.Fatalf("expected count 5, got %d", got)
	}
	// oldest retained must be the 8th tick (price 107)
	prices := c.Prices("AAPL", 0)
	if prices[0] != 107 {
		t.Fatalf("expected oldest 107, got %v", prices[0])
	}
	if prices[len(prices)-1] != 111 {
		t.Fatalf("expected newest 111, got %v", prices[len(prices)-1])
	}
}

func TestVWAP(t *testing.T) {
	c := New(100)
	c.AddTrade("MSFT", 10, 100, ts(0))
	c.AddTrade("MSFT", 20, 100, ts(1))

	v, ok := c.VWAP("MSFT", time.Minute)
	if !ok {
		t.Fatalf("expected vwap present")
	}
	if v != 15.0 {
		t.Fatalf("expected vwap 15.0, got %v", v)
	}
}

func TestVWAPAnchoredAtLastTrade(t *testing.T) {
	c := New(100)
	// old trade outside a 10s window anchored at ts(60)
	c.AddTrade("MSFT", 10, 100, ts(0))
	c.AddTrade("MSFT", 30, 100, ts(60))

	v, ok := c.VWAP("MSFT", 10*time.Second)
	if !ok {
		t.Fatalf("expected vwap present")
	}
	if v != 30 {
		t.Fatalf("expected window anchored at newest trade, got vwap %v", v)
	}
}

func TestVWAPAbsent(t *testing.T) {
	c := New(100)
	if _, ok := c.VWAP("NONE", time.Minute); ok {
		t.Fatalf("expected absent vwap for unknown symbol")
	}
	c.AddTrade("ZERO", 10, 0, ts(0))
	if _, ok := c.VWAP("ZERO", time.Minute); ok {
		t.Fatalf("expected absent vwap with zero volume")
	}
}

func TestSpreadBps(t *testing.T) {
	c := New(100)
	c.AddQuote("SPY", 100.00, 100.20, 5, 5, ts(0))

	bps, ok := c.SpreadBps("SPY")
	if !ok {
		t.Fatalf("expected spread present")
	}
	if math.Abs(bps-20.0) > 1e-9 {
		t.Fatalf("expected 20 bps, got %v", bps)
	}

	if _, ok := c.SpreadBps("NOQUOTE"); ok {
		t.Fatalf("expected absent spread with no quote")
	}
}

func TestPriceChangePct(t *testing.T) {
	c := New(100)
	c.AddTrade("QQQ", 100, 1, ts(0))
	c.AddTrade("QQQ", 105, 1, ts(5))

	pct, ok := c.PriceChangePct("QQQ", time.Minute)
	if !ok {
		t.Fatalf("expected change present")
	}
	if math.Abs(pct-0.05) > 1e-9 {
		t.Fatalf("expected 0.05, got %v", pct)
	}

	c2 := New(100)
	c2.AddTrade("QQQ", 100, 1, ts(0))
	if _, ok := c2.PriceChangePct("QQQ", time.Minute); ok {
		t.Fatalf("expected absent change with a single trade")
	}
}

func TestPeriodHighLowExcludesCurrent(t *testing.T) {
	c := New(100)
	for i := 0; i < 20; i++ {
		c.AddTrade("TSLA", 200+float64(i), 10, ts(i))
	}
	// newest trade spikes above everything before it
	c.AddTrade("TSLA", 500, 10, ts(20))

	high, low, ok := c.PeriodHighLow("TSLA", 20)
	if !ok {
		t.Fatalf("expected range present")
	}
	if high != 219 {
		t.Fatalf("expected high 219 excluding current trade, got %v", high)
	}
	if low != 200 {
		t.Fatalf("expected low 200, got %v", low)
	}
}

func TestPeriodHighLowInsufficient(t *testing.T) {
	c := New(100)
	for i := 0; i < 20; i++ {
		c.AddTrade("TSLA", 200, 10, ts(i))
	}
	// 20 trades cannot produce a 20-period range plus a current trade
	if _, _, ok := c.PeriodHighLow("TSLA", 20); ok {
		t.Fatalf("expected absent range with exactly periods trades")
	}
}

func TestStats(t *testing.T) {
	c := New(100)
	for _, p := range []float64{10, 20, 30} {
		c.AddTrade("IBM", p, 1, ts(0))
	}
	s := c.Stats("IBM")
	if s.Count != 3 {
		t.Fatalf("expected count 3, got %d", s.Count)
	}
	if s.Mean != 20 {
		t.Fatalf("expected mean 20, got %v", s.Mean)
	}
	want := math.Sqrt(200.0 / 3.0)
	if math.Abs(s.StdDev-want) > 1e-9 {
		t.Fatalf("expected stddev %v, got %v", want, s.StdDev)
	}
}

func TestAvgVolume(t *testing.T) {
	c := New(100)
	for i := 0; i < 10; i++ {
		c.AddTrade("AMD", 100, 10, ts(i))
	}
	c.AddTrade("AMD", 100, 50, ts(10)) // current trade, excluded

	avg, ok := c.AvgVolume("AMD", 10)
	if !ok {
		t.Fatalf("expected average present")
	}
	if avg != 10 {
		t.Fatalf("expected trailing average 10 excluding current, got %v", avg)
	}
}
