// Package strategy contains the signal generators. Strategies are pure
// functions of the market cache: preconditions are internal, and an unmet
// precondition yields HOLD with a reason, never an error.
package strategy

import (
	"TradePulse/internal/domain/models"
	"TradePulse/internal/marketdata"
)

// Strategy evaluates one symbol against the rolling cache and returns a
// signal. Implementations must not block and must not mutate the cache.
type Strategy interface {
	Name() string
	Evaluate(symbol string, cache *marketdata.Cache) models.Signal
}

// Params carries the protective exit percentages every emitted signal is
// stamped with. The 3:1 target:stop ratio is the configured default.
type Params struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// DefaultParams mirrors the configured risk defaults: 2% stop, 6% target.
func DefaultParams() Params {
	return Params{StopLossPct: 0.02, TakeProfitPct: 0.06}
}
