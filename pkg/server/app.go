package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TradePulse/internal/domain/repository"
	"TradePulse/internal/engine"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	applogger "TradePulse/pkg/logger"
)

// App encapsulates the application lifecycle: the trading engine, the
// status HTTP server, and the decision journal.
type App struct {
	cfg        *config.Config
	engine     *engine.Engine
	journal    repository.Journal
	handler    xhttp.Handler
	httpServer *xhttp.Server
	log        *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, eng *engine.Engine, journal repository.Journal,
	handler xhttp.Handler, log *applogger.Logger) *App {
	return &App{
		cfg:     cfg,
		engine:  eng,
		journal: journal,
		handler: handler,
		log:     log,
	}
}

// Run starts the application and blocks until interrupted or the engine
// exits on its own.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- a.engine.Run(ctx) }()
	a.log.Info("engine started",
		applogger.Strings("symbols", a.cfg.Trading.Symbols),
		applogger.String("strategy", a.cfg.Trading.Strategy),
		applogger.String("feed", a.cfg.Feed.Source))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		a.log.Info("shutdown signal received")
		cancel()
		runErr = <-engineDone
	case runErr = <-engineDone:
		// engine stopped without an operator interrupt; fatal startup
		// failures land here
	}

	a.shutdown(context.Background())
	return runErr
}

// shutdown stops the HTTP server and closes the journal. The engine has
// already run its own stop sequence by the time this is called.
func (a *App) shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.journal.Close(); err != nil {
		a.log.Warn("journal close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
}
