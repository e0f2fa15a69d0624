package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TradePulse/internal/domain/repository"
	"TradePulse/internal/engine"
	"TradePulse/internal/handler/api"
	"TradePulse/internal/ledger"
	"TradePulse/internal/marketdata"
	internalrepo "TradePulse/internal/repository"
	"TradePulse/internal/risk"
	"TradePulse/internal/service/alpaca"
	"TradePulse/internal/service/feed"
	"TradePulse/internal/service/notify"
	"TradePulse/internal/strategy"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	"TradePulse/pkg/logger"
	"TradePulse/pkg/metrics"
	"TradePulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRiskParams maps config to the risk limits.
func ProvideRiskParams(cfg *config.Config) risk.Params {
	return risk.Params{
		RiskPerTradePct: cfg.Risk.RiskPerTradePct,
		MaxPositionPct:  cfg.Risk.MaxPositionPct,
		MaxDailyLossPct: cfg.Risk.MaxDailyLossPct,
		StopLossPct:     cfg.Risk.StopLossPct,
		TakeProfitPct:   cfg.Risk.TakeProfitPct,
	}
}

// ProvideBreaker creates the session circuit breaker.
func ProvideBreaker() *risk.CircuitBreaker {
	return risk.NewCircuitBreaker()
}

// ProvideSizer creates the position sizer.
func ProvideSizer(params risk.Params, log *logger.Logger) *risk.Sizer {
	return risk.NewSizer(params, log)
}

// ProvideGate creates the pre-trade risk gate.
func ProvideGate(params risk.Params, breaker *risk.CircuitBreaker, log *logger.Logger) *risk.Gate {
	return risk.NewGate(params, breaker, log)
}

// ProvideLedger creates the order/position ledger.
func ProvideLedger(breaker *risk.CircuitBreaker, log *logger.Logger) *ledger.Ledger {
	return ledger.New(breaker, log)
}

// Caches carries the two windowed caches as distinct named handles. The
// reference cache must never alias the traded cache; keeping them in one
// typed struct makes the distinction explicit at wiring time.
type Caches struct {
	Traded    *marketdata.Cache
	Reference *marketdata.Cache
}

// ProvideCaches creates the traded and reference caches.
func ProvideCaches(cfg *config.Config) *Caches {
	return &Caches{
		Traded:    marketdata.New(cfg.Trading.WindowSize),
		Reference: marketdata.New(cfg.Trading.WindowSize),
	}
}

// ProvideStrategy selects the configured strategy implementation.
func ProvideStrategy(cfg *config.Config, params risk.Params, caches *Caches, log *logger.Logger) strategy.Strategy {
	sp := strategy.Params{
		StopLossPct:   params.StopLossPct,
		TakeProfitPct: params.TakeProfitPct,
	}
	switch cfg.Trading.Strategy {
	case "mean_reversion":
		return strategy.NewMeanReversion(sp)
	case "momentum":
		return strategy.NewMomentumBreakout(sp)
	default:
		detector := strategy.NewRegimeDetector(caches.Reference, cfg.Trading.ReferenceSymbol, log)
		return strategy.NewHybrid(sp, detector, log)
	}
}

// ProvideBroker creates the Alpaca REST broker.
func ProvideBroker(cfg *config.Config, log *logger.Logger) repository.Broker {
	return alpaca.NewBroker(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.APISecret, log)
}

// ProvideStream selects the tick feed: the Alpaca WebSocket by default, a
// Kafka tick topic when configured.
func ProvideStream(cfg *config.Config, log *logger.Logger) repository.MarketStream {
	symbols := append([]string{}, cfg.Trading.Symbols...)
	symbols = append(symbols, cfg.Trading.ReferenceSymbol)

	if cfg.Feed.Source == "kafka" {
		return feed.NewKafkaStream(feed.Config{
			Brokers:    cfg.Kafka.Brokers,
			Topic:      cfg.Kafka.Topic,
			GroupID:    cfg.Kafka.GroupID,
			Workers:    cfg.Kafka.Workers,
			BufferSize: cfg.Kafka.BufferSize,
			MinBytes:   cfg.Kafka.MinBytes,
			MaxBytes:   cfg.Kafka.MaxBytes,
		}, log)
	}

	return alpaca.NewStream(
		cfg.Broker.APIKey,
		cfg.Broker.APISecret,
		cfg.Feed.WebSocketURL,
		updatesURL(cfg.Broker.BaseURL),
		symbols,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		log,
	)
}

// updatesURL derives the trading API's websocket endpoint from the REST base.
func updatesURL(baseURL string) string {
	u := strings.Replace(baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/stream"
}

// ProvideNotifier publishes alerts over Redis when an address is configured,
// falling back to log-only delivery.
func ProvideNotifier(cfg *config.Config, log *logger.Logger) repository.Notifier {
	if cfg.Notify.RedisAddr == "" {
		return notify.NewLogNotifier(log)
	}
	return notify.NewRedisNotifier(cfg.Notify.RedisAddr, cfg.Notify.RedisPassword,
		cfg.Notify.RedisDB, cfg.Notify.Channel, log)
}

// ProvideJournal creates the ClickHouse decision journal when enabled.
func ProvideJournal(cfg *config.Config, log *logger.Logger) (repository.Journal, error) {
	if !cfg.Journal.Enabled {
		return internalrepo.NopJournal{}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.Journal.Host),
		pkgch.WithPort(cfg.Journal.Port),
		pkgch.WithDatabase(cfg.Journal.Database),
		pkgch.WithCredentials(cfg.Journal.User, cfg.Journal.Password),
		pkgch.WithMaxConnections(4, 2),
	)
	if err != nil {
		return nil, fmt.Errorf("journal client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.JournalSchema(cfg.Journal.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return internalrepo.NewClickHouseJournal(client.DB(), cfg.Journal.Database,
		cfg.Journal.BatchSize, cfg.Journal.FlushEvery, log), nil
}

// ProvideEngine assembles the event loop.
func ProvideEngine(
	cfg *config.Config,
	caches *Caches,
	strat strategy.Strategy,
	sizer *risk.Sizer,
	gate *risk.Gate,
	breaker *risk.CircuitBreaker,
	book *ledger.Ledger,
	broker repository.Broker,
	stream repository.MarketStream,
	notifier repository.Notifier,
	journal repository.Journal,
	m repository.Metrics,
	log *logger.Logger,
) *engine.Engine {
	return engine.New(engine.Deps{
		Symbols:       cfg.Trading.Symbols,
		RefSymbol:     cfg.Trading.ReferenceSymbol,
		MinConfidence: cfg.Trading.MinConfidence,
		Cache:         caches.Traded,
		RefCache:      caches.Reference,
		Strategy:      strat,
		Sizer:         sizer,
		Gate:          gate,
		Breaker:       breaker,
		Ledger:        book,
		Broker:        broker,
		Stream:        stream,
		Notifier:      notifier,
		Journal:       journal,
		Metrics:       m,
		Log:           log,
	}, engine.Options{
		// a kafka tick topic carries no execution events
		AssumeFills: cfg.Feed.Source == "kafka",
	})
}

// ProvideStatusHandler creates the HTTP dashboard handler.
func ProvideStatusHandler(cfg *config.Config, e *engine.Engine, book *ledger.Ledger,
	breaker *risk.CircuitBreaker, caches *Caches, log *logger.Logger) xhttp.Handler {
	return api.NewStatusHandler(log, e, book, breaker, caches.Traded, cfg.Trading.Symbols)
}

// ProvideApp assembles the application.
func ProvideApp(cfg *config.Config, e *engine.Engine, journal repository.Journal,
	handler xhttp.Handler, log *logger.Logger) *server.App {
	return server.New(cfg, e, journal, handler, log)
}
