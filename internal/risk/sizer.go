package risk

import (
	"math"

	"TradePulse/internal/marketdata"
	"TradePulse/pkg/logger"
)

// baselineVolatility is the stddev/mean ratio below which no scaling is
// applied. Above it, position size shrinks proportionally.
const baselineVolatility = 0.02

// Params carries the capital-preservation limits. Values are fractions of
// equity, not percentages.
type Params struct {
	RiskPerTradePct float64
	MaxPositionPct  float64
	MaxDailyLossPct float64
	StopLossPct     float64
	TakeProfitPct   float64
}

// Sizer computes whole-share order quantities from account equity and the
// per-trade risk budget, scaled down in rough proportion to the symbol's
// recent realized volatility.
type Sizer struct {
	params Params
	log    *logger.Logger
}

func NewSizer(params Params, log *logger.Logger) *Sizer {
	return &Sizer{params: params, log: log}
}

// Size returns the share quantity for a new position in symbol at price.
// Returns 0 on non-positive price; the result never exceeds the
// MaxPositionPct notional cap.
func (s *Sizer) Size(symbol string, price, equity float64, cache *marketdata.Cache) float64 {
	if price <= 0 {
		s.log.Warn("invalid price for sizing",
			logger.String("symbol", symbol),
			logger.Float64("price", price))
		return 0
	}

	riskBudget := equity * s.params.RiskPerTradePct
	perShareRisk := price * s.params.StopLossPct
	if perShareRisk <= 0 {
		return 0
	}
	shares := math.Floor(riskBudget / perShareRisk)

	if scale := s.volatilityScale(symbol, cache); scale < 1 {
		shares = math.Floor(shares * scale)
	}

	cap := math.Floor(equity * s.params.MaxPositionPct / price)
	if shares > cap {
		shares = cap
	}
	if shares < 0 {
		shares = 0
	}
	return shares
}

// volatilityScale maps the symbol's stddev/mean ratio to a factor in (0, 1].
// Calm or unknown symbols size at full budget; choppy symbols shrink.
func (s *Sizer) volatilityScale(symbol string, cache *marketdata.Cache) float64 {
	if cache == nil {
		return 1
	}
	stats := cache.Stats(symbol)
	if stats.Count < 2 || stats.Mean <= 0 {
		return 1
	}
	ratio := stats.StdDev / stats.Mean
	if ratio <= baselineVolatility {
		return 1
	}
	return baselineVolatility / ratio
}
