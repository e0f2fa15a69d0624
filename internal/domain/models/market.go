package models

import "time"

// Trade is a single trade tick. Ticks are append-only inputs and are never
// mutated after ingestion.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Quote is a single bid/ask tick.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	BidSize   float64   `json:"bid_size"`
	Ask       float64   `json:"ask"`
	AskSize   float64   `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

// Spread returns ask minus bid.
func (q Quote) Spread() float64 { return q.Ask - q.Bid }

// Stats summarizes stored trade prices for a symbol.
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// Clock is the venue market-hours snapshot.
type Clock struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// AccountSnapshot is a point-in-time account read. It must not be cached
// longer than one evaluation cycle.
type AccountSnapshot struct {
	Equity         float64 `json:"equity"`
	BuyingPower    float64 `json:"buying_power"`
	TradingBlocked bool    `json:"trading_blocked"`
}
