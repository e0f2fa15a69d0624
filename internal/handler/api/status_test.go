package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/engine"
	"TradePulse/internal/ledger"
	"TradePulse/internal/marketdata"
	"TradePulse/internal/risk"
	"TradePulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*StatusHandler, *marketdata.Cache, *ledger.Ledger) {
	log := logger.Nop()
	breaker := risk.NewCircuitBreaker()
	breaker.Arm(100000)
	book := ledger.New(breaker, log)
	cache := marketdata.New(100)
	eng := engine.New(engine.Deps{
		Symbols: []string{"AAPL"},
		Cache:   cache,
		Ledger:  book,
		Breaker: breaker,
		Log:     log,
	}, engine.Options{})
	return NewStatusHandler(log, eng, book, breaker, cache, []string{"AAPL"}), cache, book
}

func doRequest(t *testing.T, h *StatusHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	h, _, _ := newTestHandler()
	rec := doRequest(t, h, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data struct {
			State      string  `json:"state"`
			StartOfDay float64 `json:"start_of_day_equity"`
			Symbols    []string `json:"symbols"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.State != "STARTING" {
		t.Fatalf("unexpected state %q", body.Data.State)
	}
	if body.Data.StartOfDay != 100000 {
		t.Fatalf("unexpected start-of-day equity %v", body.Data.StartOfDay)
	}
	if len(body.Data.Symbols) != 1 || body.Data.Symbols[0] != "AAPL" {
		t.Fatalf("unexpected symbols %v", body.Data.Symbols)
	}
}

func TestSymbolStatsNotFound(t *testing.T) {
	h, _, _ := newTestHandler()
	rec := doRequest(t, h, "/api/symbols/TSLA/stats")
	// the envelope carries the status; transport level is always 200
	var body struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %d", body.Status)
	}
}

func TestRecentSignalsEndpoint(t *testing.T) {
	h, _, book := newTestHandler()
	book.RecordSignal(models.Signal{Symbol: "AAPL", Action: models.ActionBuy, Confidence: 0.8, Strategy: "momentum"})
	book.RecordSignal(models.Signal{Symbol: "AAPL", Action: models.ActionSell, Confidence: 0.9, Strategy: "momentum"})

	rec := doRequest(t, h, "/api/signals")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data struct {
			Rows  []models.Signal `json:"rows"`
			Total int64           `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Total != 2 || len(body.Data.Rows) != 2 {
		t.Fatalf("expected both decisions, got %+v", body.Data)
	}
	if body.Data.Rows[0].Action != models.ActionSell {
		t.Fatalf("expected newest decision first, got %+v", body.Data.Rows[0])
	}

	rec = doRequest(t, h, "/api/signals?limit=1")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Rows) != 1 || body.Data.Total != 2 {
		t.Fatalf("limit must trim rows but keep total, got %+v", body.Data)
	}
}

func TestSymbolStats(t *testing.T) {
	h, cache, _ := newTestHandler()
	now := time.Now()
	cache.AddTrade("AAPL", 100, 10, now)
	cache.AddTrade("AAPL", 102, 10, now.Add(time.Second))
	cache.AddQuote("AAPL", 101.9, 102.1, 1, 1, now.Add(time.Second))

	rec := doRequest(t, h, "/api/symbols/AAPL/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data struct {
			TradeCount int     `json:"trade_count"`
			LastPrice  float64 `json:"last_price"`
			Mean       float64 `json:"mean"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.TradeCount != 2 || body.Data.LastPrice != 102 {
		t.Fatalf("unexpected stats %+v", body.Data)
	}
	if body.Data.Mean != 101 {
		t.Fatalf("unexpected mean %v", body.Data.Mean)
	}
}
