package strategy

import (
	"fmt"
	"math"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/marketdata"
)

const (
	moPeriods          = 20
	moBreakoutThresh   = 0.03
	moVolumeMultiplier = 2.5
	moConfDivisor      = 5.0
)

// MomentumBreakout buys strength and sells weakness: a close beyond the
// prior period range on outsized volume tends to continue. Volume is
// measured on the current trade, not a smoothed window; averaging it away
// silently breaks detection.
type MomentumBreakout struct {
	params Params
}

func NewMomentumBreakout(params Params) *MomentumBreakout {
	return &MomentumBreakout{params: params}
}

func (s *MomentumBreakout) Name() string { return "momentum_breakout" }

func (s *MomentumBreakout) Evaluate(symbol string, cache *marketdata.Cache) models.Signal {
	current, ok := cache.LastTrade(symbol)
	if !ok {
		return models.Hold(symbol, s.Name(), "no price data available")
	}

	// periods prior trades plus the current one
	if n := cache.TradeCount(symbol); n < moPeriods+1 {
		return models.Hold(symbol, s.Name(),
			fmt.Sprintf("insufficient data (%d of %d trades)", n, moPeriods+1))
	}

	high, low, ok := cache.PeriodHighLow(symbol, moPeriods)
	if !ok {
		return models.Hold(symbol, s.Name(), "insufficient historical range")
	}
	avgVolume, ok := cache.AvgVolume(symbol, moPeriods)
	if !ok || avgVolume <= 0 {
		return models.Hold(symbol, s.Name(), "no trailing volume")
	}

	volumeRatio := current.Size / avgVolume

	if breakoutLevel := high * (1 + moBreakoutThresh); current.Price >= breakoutLevel {
		if volumeRatio < moVolumeMultiplier {
			return models.Hold(symbol, s.Name(),
				fmt.Sprintf("breakout without volume confirmation (%.1fx < %.1fx)",
					volumeRatio, moVolumeMultiplier))
		}
		pct := (current.Price - high) / high * 100
		return s.signal(symbol, models.ActionBuy, pct,
			fmt.Sprintf("breakout: %.1f%% above $%.2f high, volume %.1fx avg", pct, high, volumeRatio))
	}

	if breakdownLevel := low * (1 - moBreakoutThresh); current.Price <= breakdownLevel {
		if volumeRatio < moVolumeMultiplier {
			return models.Hold(symbol, s.Name(),
				fmt.Sprintf("breakdown without volume confirmation (%.1fx < %.1fx)",
					volumeRatio, moVolumeMultiplier))
		}
		pct := (low - current.Price) / low * 100
		return s.signal(symbol, models.ActionSell, pct,
			fmt.Sprintf("breakdown: %.1f%% below $%.2f low, volume %.1fx avg", pct, low, volumeRatio))
	}

	return models.Hold(symbol, s.Name(),
		fmt.Sprintf("no breakout: price $%.2f within $%.2f-$%.2f range", current.Price, low, high))
}

func (s *MomentumBreakout) signal(symbol string, action models.Action, breakoutPct float64, reason string) models.Signal {
	return models.Signal{
		Symbol:        symbol,
		Action:        action,
		Confidence:    math.Min(breakoutPct/moConfDivisor, 1.0),
		Reason:        reason,
		StopLossPct:   s.params.StopLossPct,
		TakeProfitPct: s.params.TakeProfitPct,
		Strategy:      s.Name(),
		Timestamp:     time.Now(),
	}
}
