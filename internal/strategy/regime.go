package strategy

import (
	"math"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/marketdata"
	"TradePulse/pkg/logger"
)

const (
	regimeLookback      = 20
	regimeCheckInterval = time.Hour
	volatilityCeiling   = 0.25
	trendingVolCeiling  = 0.15
	trendingSlopeFloor  = 0.1
	annualizationFactor = 252
)

// RegimeDetector classifies the broad-market condition from a reference
// index (e.g. SPY) held in its own cache. The reference cache must be a
// distinct instance from any traded symbol's cache; regime detection
// computed from the traded series itself is meaningless.
type RegimeDetector struct {
	refCache  *marketdata.Cache
	refSymbol string
	log       *logger.Logger

	mu        sync.Mutex
	current   models.Regime
	lastCheck time.Time
}

func NewRegimeDetector(refCache *marketdata.Cache, refSymbol string, log *logger.Logger) *RegimeDetector {
	return &RegimeDetector{
		refCache:  refCache,
		refSymbol: refSymbol,
		log:       log,
		current:   models.RegimeRanging,
	}
}

// ReferenceCache exposes the detector's cache handle so callers can feed it
// and the hybrid strategy can verify handle distinctness.
func (d *RegimeDetector) ReferenceCache() *marketdata.Cache { return d.refCache }

// Current returns the last classified regime without recomputing.
func (d *RegimeDetector) Current() models.Regime {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Detect classifies the market regime, recomputing at most once per
// regimeCheckInterval. Falls back to RANGING when reference data is thin.
func (d *RegimeDetector) Detect() models.Regime {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastCheck.IsZero() && time.Since(d.lastCheck) < regimeCheckInterval {
		return d.current
	}

	prices := d.refCache.Prices(d.refSymbol, regimeLookback)
	if len(prices) < regimeLookback {
		d.log.Warn("insufficient reference data for regime detection, defaulting to RANGING",
			logger.String("symbol", d.refSymbol),
			logger.Int("trades", len(prices)))
		return models.RegimeRanging
	}

	volatility := annualizedVolatility(prices)
	slope := (prices[len(prices)-1] - prices[0]) / float64(len(prices))

	regime := models.RegimeRanging
	switch {
	case volatility > volatilityCeiling:
		regime = models.RegimeVolatile
	case math.Abs(slope) > trendingSlopeFloor && volatility < trendingVolCeiling:
		regime = models.RegimeTrending
	}

	d.current = regime
	d.lastCheck = time.Now()

	d.log.Info("regime detected",
		logger.String("regime", string(regime)),
		logger.Float64("volatility", volatility),
		logger.Float64("slope", slope))

	return regime
}

func annualizedVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	_, stddev := meanStd(returns)
	return stddev * math.Sqrt(annualizationFactor)
}
