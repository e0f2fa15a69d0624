package strategy

import (
	"fmt"
	"math"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/marketdata"
)

const (
	mrLookback     = 20
	mrZThreshold   = 2.0
	mrMaxSpreadBps = 20.0
	mrConfDivisor  = 3.0
)

// MeanReversion buys oversold and sells overbought. Prices oscillate around
// their rolling mean; a deviation beyond the z-score threshold is expected
// to revert.
type MeanReversion struct {
	params Params
}

func NewMeanReversion(params Params) *MeanReversion {
	return &MeanReversion{params: params}
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Evaluate(symbol string, cache *marketdata.Cache) models.Signal {
	price, ok := cache.LastPrice(symbol)
	if !ok {
		return models.Hold(symbol, s.Name(), "no price data available")
	}

	if n := cache.TradeCount(symbol); n < mrLookback {
		return models.Hold(symbol, s.Name(),
			fmt.Sprintf("insufficient data (%d of %d trades)", n, mrLookback))
	}

	// thin liquidity makes reversion entries too expensive
	spread, ok := cache.SpreadBps(symbol)
	if !ok {
		return models.Hold(symbol, s.Name(), "no quote data for spread check")
	}
	if spread > mrMaxSpreadBps {
		return models.Hold(symbol, s.Name(),
			fmt.Sprintf("spread too wide (%.1f bps > %.0f bps)", spread, mrMaxSpreadBps))
	}

	prices := cache.Prices(symbol, mrLookback)
	mean, stddev := meanStd(prices)
	if stddev == 0 {
		return models.Hold(symbol, s.Name(), "zero volatility (stale data)")
	}

	z := (price - mean) / stddev

	switch {
	case z <= -mrZThreshold:
		return s.signal(symbol, models.ActionBuy, z,
			fmt.Sprintf("oversold: %.2f std devs below mean ($%.2f)", math.Abs(z), mean))
	case z >= mrZThreshold:
		return s.signal(symbol, models.ActionSell, z,
			fmt.Sprintf("overbought: %.2f std devs above mean ($%.2f)", z, mean))
	default:
		return models.Hold(symbol, s.Name(),
			fmt.Sprintf("within range: %.2f std devs from mean", z))
	}
}

func (s *MeanReversion) signal(symbol string, action models.Action, z float64, reason string) models.Signal {
	return models.Signal{
		Symbol:        symbol,
		Action:        action,
		Confidence:    math.Min(math.Abs(z)/mrConfDivisor, 1.0),
		Reason:        reason,
		StopLossPct:   s.params.StopLossPct,
		TakeProfitPct: s.params.TakeProfitPct,
		Strategy:      s.Name(),
		Timestamp:     time.Now(),
	}
}

func meanStd(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}
