package risk

import (
	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// Rejection reasons, in check order. The first failing check wins.
const (
	ReasonMarketClosed      = "market closed"
	ReasonPositionLimit     = "position exceeds limit"
	ReasonDailyLossLimit    = "daily loss limit"
	ReasonInsufficientPower = "insufficient buying power"
	ReasonInvalidQuantity   = "invalid quantity"
)

// Verdict is the typed outcome of a pre-trade validation. A rejection is a
// normal result, not an error; callers log it and discard the order.
type Verdict struct {
	OK      bool
	Reason  string
	Tripped bool // true when this evaluation tripped the circuit breaker
}

func accept() Verdict              { return Verdict{OK: true} }
func reject(reason string) Verdict { return Verdict{Reason: reason} }

// Gate runs the fixed sequence of pre-trade checks against a point-in-time
// account snapshot. It owns no account state of its own; equity, buying
// power and daily P&L are supplied fresh by the orchestrator each cycle.
type Gate struct {
	params  Params
	breaker *CircuitBreaker
	log     *logger.Logger
}

func NewGate(params Params, breaker *CircuitBreaker, log *logger.Logger) *Gate {
	return &Gate{params: params, breaker: breaker, log: log}
}

// MaxDailyLossPct exposes the loss limit so the P&L monitor applies the
// same threshold as the gate.
func (g *Gate) MaxDailyLossPct() float64 { return g.params.MaxDailyLossPct }

// ValidateOrder evaluates the five checks in order and returns on the first
// failure. marketOpen comes from the broker clock and dailyPnL from the
// ledger, both read in the same evaluation cycle as the account snapshot.
func (g *Gate) ValidateOrder(symbol string, qty float64, side models.Side, price float64,
	account models.AccountSnapshot, marketOpen bool, dailyPnL float64) Verdict {

	if !marketOpen {
		return reject(ReasonMarketClosed)
	}

	notional := qty * price
	if notional > account.Equity*g.params.MaxPositionPct {
		return reject(ReasonPositionLimit)
	}

	if g.breaker.Tripped() {
		return reject(ReasonDailyLossLimit)
	}
	if dailyPnL < -account.Equity*g.params.MaxDailyLossPct {
		v := reject(ReasonDailyLossLimit)
		if g.breaker.Trip() {
			v.Tripped = true
			g.log.Error("daily loss limit breached, circuit breaker tripped",
				logger.String("symbol", symbol),
				logger.Float64("daily_pnl", dailyPnL),
				logger.Float64("equity", account.Equity))
		}
		return v
	}

	if notional > account.BuyingPower {
		return reject(ReasonInsufficientPower)
	}

	if qty <= 0 {
		return reject(ReasonInvalidQuantity)
	}

	return accept()
}
