package models

import "time"

// Action is the directional outcome of a strategy evaluation.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Regime classifies the broad-market condition used by the hybrid strategy.
type Regime string

const (
	RegimeTrending Regime = "TRENDING"
	RegimeRanging  Regime = "RANGING"
	RegimeVolatile Regime = "VOLATILE"
)

// Signal is the ephemeral result of one strategy evaluation. It is consumed
// immediately by the engine and never persisted (the journal records a copy
// for analysis, not for replay).
type Signal struct {
	Symbol        string    `json:"symbol"`
	Action        Action    `json:"action"`
	Confidence    float64   `json:"confidence"`
	Reason        string    `json:"reason"`
	StopLossPct   float64   `json:"stop_loss_pct"`
	TakeProfitPct float64   `json:"take_profit_pct"`
	Strategy      string    `json:"strategy"`
	Timestamp     time.Time `json:"timestamp"`
}

// Hold builds a HOLD signal with an explanatory reason.
func Hold(symbol, strategy, reason string) Signal {
	return Signal{
		Symbol:    symbol,
		Action:    ActionHold,
		Reason:    reason,
		Strategy:  strategy,
		Timestamp: time.Now(),
	}
}

// Actionable reports whether the signal calls for an order.
func (s Signal) Actionable() bool { return s.Action == ActionBuy || s.Action == ActionSell }
