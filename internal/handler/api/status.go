package api

import (
	"time"

	"TradePulse/internal/engine"
	"TradePulse/internal/ledger"
	"TradePulse/internal/marketdata"
	"TradePulse/internal/risk"
	xhttp "TradePulse/pkg/http"
	xlogger "TradePulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusHandler exposes the read-only session dashboard endpoints.
type StatusHandler struct {
	logger  *xlogger.Logger
	engine  *engine.Engine
	book    *ledger.Ledger
	breaker *risk.CircuitBreaker
	cache   *marketdata.Cache
	symbols []string
	started time.Time
}

func NewStatusHandler(logger *xlogger.Logger, eng *engine.Engine, book *ledger.Ledger,
	breaker *risk.CircuitBreaker, cache *marketdata.Cache, symbols []string) *StatusHandler {
	return &StatusHandler{
		logger:  logger,
		engine:  eng,
		book:    book,
		breaker: breaker,
		cache:   cache,
		symbols: symbols,
		started: time.Now(),
	}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/positions", h.Positions)
	g.GET("/orders", h.Orders)
	g.GET("/signals", h.Signals)
	g.GET("/symbols/:symbol/stats", h.SymbolStats)
}

type statusResponse struct {
	State          string    `json:"state"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	TickCount      int64     `json:"tick_count"`
	LastTickAt     time.Time `json:"last_tick_at"`
	BreakerTripped bool      `json:"breaker_tripped"`
	StartOfDay     float64   `json:"start_of_day_equity"`
	OrdersTotal    int       `json:"orders_total"`
	FillsTotal     int       `json:"fills_total"`
	Symbols        []string  `json:"symbols"`
}

func (h *StatusHandler) Status(c echo.Context) error {
	orders, fills := h.book.Counters()
	return xhttp.SuccessResponse(c, statusResponse{
		State:          string(h.engine.State()),
		UptimeSeconds:  time.Since(h.started).Seconds(),
		TickCount:      h.engine.TickCount(),
		LastTickAt:     h.engine.LastTickAt(),
		BreakerTripped: h.breaker.Tripped(),
		StartOfDay:     h.breaker.StartOfDayEquity(),
		OrdersTotal:    orders,
		FillsTotal:     fills,
		Symbols:        h.symbols,
	})
}

func (h *StatusHandler) Positions(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.book.Positions())
}

func (h *StatusHandler) Orders(c echo.Context) error {
	orders := h.book.OpenOrders()
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Time{})
	if !since.IsZero() {
		filtered := orders[:0]
		for _, o := range orders {
			if !o.CreatedAt.Before(since) {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	total := int64(len(orders))
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), len(orders))
	if limit >= 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	return xhttp.ListResponse(c, orders, total)
}

// Signals serves the recent strategy decisions, newest first.
func (h *StatusHandler) Signals(c echo.Context) error {
	signals := h.book.RecentSignals()
	total := int64(len(signals))
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), len(signals))
	if limit >= 0 && limit < len(signals) {
		signals = signals[:limit]
	}
	return xhttp.ListResponse(c, signals, total)
}

type symbolStatsResponse struct {
	Symbol     string  `json:"symbol"`
	TradeCount int     `json:"trade_count"`
	LastPrice  float64 `json:"last_price"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	SpreadBps  float64 `json:"spread_bps"`
}

func (h *StatusHandler) SymbolStats(c echo.Context) error {
	symbol := c.Param("symbol")
	if h.cache.TradeCount(symbol) == 0 {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("no data for symbol %s", symbol))
	}
	stats := h.cache.Stats(symbol)
	resp := symbolStatsResponse{
		Symbol:     symbol,
		TradeCount: stats.Count,
		Mean:       stats.Mean,
		StdDev:     stats.StdDev,
	}
	if p, ok := h.cache.LastPrice(symbol); ok {
		resp.LastPrice = p
	}
	if s, ok := h.cache.SpreadBps(symbol); ok {
		resp.SpreadBps = s
	}
	return xhttp.SuccessResponse(c, resp)
}
