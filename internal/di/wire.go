//go:build wireinject
// +build wireinject

package di

import (
	"TradePulse/pkg/config"
	"TradePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Risk
		ProvideRiskParams,
		ProvideBreaker,
		ProvideSizer,
		ProvideGate,

		// Market data and strategy
		ProvideCaches,
		ProvideStrategy,

		// Ledger
		ProvideLedger,

		// External capabilities
		ProvideBroker,
		ProvideStream,
		ProvideNotifier,
		ProvideJournal,

		// Orchestration
		ProvideEngine,
		ProvideStatusHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
