package strategy

import (
	"fmt"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/marketdata"
	"TradePulse/pkg/logger"
)

// Hybrid switches between mean reversion and momentum based on the detected
// market regime, and stands aside entirely in a volatile regime.
type Hybrid struct {
	meanReversion *MeanReversion
	momentum      *MomentumBreakout
	detector      *RegimeDetector
	log           *logger.Logger
	warnedHandle  bool
}

func NewHybrid(params Params, detector *RegimeDetector, log *logger.Logger) *Hybrid {
	return &Hybrid{
		meanReversion: NewMeanReversion(params),
		momentum:      NewMomentumBreakout(params),
		detector:      detector,
		log:           log,
	}
}

func (s *Hybrid) Name() string { return "hybrid" }

// Detector exposes the regime detector for monitoring.
func (s *Hybrid) Detector() *RegimeDetector { return s.detector }

func (s *Hybrid) Evaluate(symbol string, cache *marketdata.Cache) models.Signal {
	// Passing the traded cache as the reference cache defeats regime
	// detection. Degrade to single-strategy behavior, but say so loudly.
	if cache == s.detector.ReferenceCache() {
		if !s.warnedHandle {
			s.log.Error("hybrid strategy received the traded cache as its reference cache; regime detection disabled",
				logger.String("symbol", symbol))
			s.warnedHandle = true
		}
		return s.tag(models.RegimeRanging, s.meanReversion.Evaluate(symbol, cache))
	}

	regime := s.detector.Detect()

	switch regime {
	case models.RegimeVolatile:
		sig := models.Hold(symbol, s.Name(), "volatile regime, staying in cash")
		return s.tag(regime, sig)
	case models.RegimeTrending:
		return s.tag(regime, s.momentum.Evaluate(symbol, cache))
	default:
		return s.tag(regime, s.meanReversion.Evaluate(symbol, cache))
	}
}

func (s *Hybrid) tag(regime models.Regime, sig models.Signal) models.Signal {
	sig.Strategy = s.Name()
	sig.Reason = fmt.Sprintf("[%s] %s", regime, sig.Reason)
	return sig
}
