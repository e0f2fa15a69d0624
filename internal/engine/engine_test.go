package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/ledger"
	"TradePulse/internal/marketdata"
	"TradePulse/internal/risk"
	"TradePulse/pkg/logger"
)

type fakeBroker struct {
	mu          sync.Mutex
	account     models.AccountSnapshot
	accountErrs int
	clock       models.Clock
	positions   []models.BrokerPosition
	submitted   []models.Order
	submitErr   error
	cancelAll   int
	closed      []string
}

func (b *fakeBroker) GetAccount(context.Context) (models.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.accountErrs > 0 {
		b.accountErrs--
		return models.AccountSnapshot{}, errors.New("account unavailable")
	}
	return b.account, nil
}

func (b *fakeBroker) GetClock(context.Context) (models.Clock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock, nil
}

func (b *fakeBroker) ListPositions(context.Context) ([]models.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions, nil
}

func (b *fakeBroker) SubmitOrder(_ context.Context, o *models.Order) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return "", b.submitErr
	}
	b.submitted = append(b.submitted, *o)
	return o.ID, nil
}

func (b *fakeBroker) CancelAllOrders(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelAll++
	return nil
}

func (b *fakeBroker) ClosePosition(_ context.Context, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, symbol)
	return nil
}

func (b *fakeBroker) submittedOrders() []models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Order, len(b.submitted))
	copy(out, b.submitted)
	return out
}

type fakeStream struct {
	mu         sync.Mutex
	trades     chan *models.Trade
	quotes     chan *models.Quote
	errs       chan error
	fills      chan *models.Fill
	connected  bool
	reconnects int
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		trades:    make(chan *models.Trade, 16),
		quotes:    make(chan *models.Quote, 16),
		errs:      make(chan error, 4),
		fills:     make(chan *models.Fill, 16),
		connected: true,
	}
}

func (s *fakeStream) Connect(context.Context) error   { return nil }
func (s *fakeStream) Subscribe(context.Context) error { return nil }

func (s *fakeStream) Read(context.Context) (<-chan *models.Trade, <-chan *models.Quote, <-chan error) {
	return s.trades, s.quotes, s.errs
}

func (s *fakeStream) Fills(context.Context) <-chan *models.Fill { return s.fills }

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *fakeStream) Close() error { return nil }

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

type notice struct {
	message  string
	severity repository.Severity
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *fakeNotifier) Notify(_ context.Context, message string, severity repository.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{message, severity})
}

func (n *fakeNotifier) bySeverity(s repository.Severity) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.notices {
		if x.severity == s {
			c++
		}
	}
	return c
}

type nopJournal struct{}

func (nopJournal) RecordSignal(context.Context, models.Signal) error        { return nil }
func (nopJournal) RecordOrder(context.Context, *models.Order, string) error { return nil }
func (nopJournal) Flush(context.Context) error                              { return nil }
func (nopJournal) Close() error                                             { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordTick(string)               {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordSignal(string, string)     {}
func (nopMetrics) RecordOrder(string, string)      {}
func (nopMetrics) RecordRejection(string)          {}
func (nopMetrics) RecordDailyPnL(float64)          {}
func (nopMetrics) RecordBreaker(bool)              {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordSessionState(string)       {}

// scriptedStrategy returns the queued signal for every evaluation.
type scriptedStrategy struct {
	mu   sync.Mutex
	next models.Signal
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Evaluate(symbol string, _ *marketdata.Cache) models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig := s.next
	sig.Symbol = symbol
	return sig
}

func (s *scriptedStrategy) set(sig models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = sig
}

type harness struct {
	engine   *Engine
	broker   *fakeBroker
	stream   *fakeStream
	notifier *fakeNotifier
	strat    *scriptedStrategy
	breaker  *risk.CircuitBreaker
	book     *ledger.Ledger
}

func newHarness(opts Options) *harness {
	params := risk.Params{
		RiskPerTradePct: 0.01,
		MaxPositionPct:  0.10,
		MaxDailyLossPct: 0.02,
		StopLossPct:     0.02,
		TakeProfitPct:   0.06,
	}
	log := logger.Nop()
	breaker := risk.NewCircuitBreaker()
	book := ledger.New(breaker, log)
	broker := &fakeBroker{
		account: models.AccountSnapshot{Equity: 100_000, BuyingPower: 200_000},
		clock:   models.Clock{IsOpen: true},
	}
	stream := newFakeStream()
	notifier := &fakeNotifier{}
	strat := &scriptedStrategy{}
	strat.set(models.Hold("", "scripted", "idle"))

	e := New(Deps{
		Symbols:       []string{"AAPL"},
		RefSymbol:     "SPY",
		MinConfidence: 0.7,
		Cache:         marketdata.New(100),
		RefCache:      marketdata.New(100),
		Strategy:      strat,
		Sizer:         risk.NewSizer(params, log),
		Gate:          risk.NewGate(params, breaker, log),
		Breaker:       breaker,
		Ledger:        book,
		Broker:        broker,
		Stream:        stream,
		Notifier:      notifier,
		Journal:       nopJournal{},
		Metrics:       nopMetrics{},
		Log:           log,
	}, opts)

	return &harness{engine: e, broker: broker, stream: stream, notifier: notifier,
		strat: strat, breaker: breaker, book: book}
}

func buySignal(conf float64) models.Signal {
	return models.Signal{
		Action:        models.ActionBuy,
		Confidence:    conf,
		Reason:        "scripted entry",
		StopLossPct:   0.02,
		TakeProfitPct: 0.06,
		Strategy:      "scripted",
		Timestamp:     time.Now(),
	}
}

func trade(symbol string, price float64) *models.Trade {
	return &models.Trade{Symbol: symbol, Price: price, Size: 100, Timestamp: time.Now()}
}

func TestRunGracefulShutdown(t *testing.T) {
	h := newHarness(Options{MarketOpenPoll: time.Millisecond})
	h.breaker.Arm(100_000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	h.stream.trades <- trade("AAPL", 100)
	deadline := time.After(2 * time.Second)
	for h.engine.TickCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("trade never processed")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}

	if got := h.engine.State(); got != StateStopped {
		t.Fatalf("expected STOPPED, got %s", got)
	}
	if h.broker.cancelAll == 0 {
		t.Fatalf("shutdown must cancel open orders")
	}
	if h.notifier.bySeverity(repository.SeverityLow) == 0 {
		t.Fatalf("expected a session summary notification")
	}
}

func TestRunSeedsTickClock(t *testing.T) {
	h := newHarness(Options{MarketOpenPoll: time.Millisecond})
	h.breaker.Arm(100_000)

	if !h.engine.LastTickAt().IsZero() {
		t.Fatalf("tick clock must start zero before the session")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	// no trade is ever delivered; the clock must still be seeded so the
	// staleness check can fire on a silent feed
	deadline := time.After(2 * time.Second)
	for h.engine.State() != StateRunning {
		select {
		case <-deadline:
			t.Fatalf("session never reached RUNNING")
		case <-time.After(time.Millisecond):
		}
	}
	if h.engine.LastTickAt().IsZero() {
		t.Fatalf("tick clock must be seeded when the session starts")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRunRefusesBlockedAccount(t *testing.T) {
	h := newHarness(Options{MarketOpenPoll: time.Millisecond})
	h.broker.account.TradingBlocked = true

	if err := h.engine.Run(context.Background()); err == nil {
		t.Fatalf("expected fatal error for blocked account")
	}
	if got := h.engine.State(); got != StateError {
		t.Fatalf("expected ERROR, got %s", got)
	}
	if h.notifier.bySeverity(repository.SeverityCritical) == 0 {
		t.Fatalf("expected critical notification")
	}
}

func TestAccountReadRetriesOnce(t *testing.T) {
	h := newHarness(Options{})
	h.broker.accountErrs = 1

	account, err := h.engine.getAccount(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if account.Equity != 100_000 {
		t.Fatalf("unexpected account: %+v", account)
	}

	h.broker.accountErrs = 2
	if _, err := h.engine.getAccount(context.Background()); err == nil {
		t.Fatalf("expected error after second failure")
	}
}

func TestTradeTriggersOrder(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	h.strat.set(buySignal(0.9))

	h.engine.onTrade(context.Background(), trade("AAPL", 100))

	orders := h.broker.submittedOrders()
	if len(orders) != 1 {
		t.Fatalf("expected one order, got %d", len(orders))
	}
	o := orders[0]
	if o.Side != models.SideBuy || o.Qty != 100 {
		t.Fatalf("unexpected order: %+v", o)
	}
	if o.Bracket == nil {
		t.Fatalf("buy order must carry a bracket")
	}
	if o.Bracket.StopPrice >= o.LimitPrice || o.Bracket.TargetPrice <= o.LimitPrice {
		t.Fatalf("malformed bracket: %+v", o.Bracket)
	}
}

func TestLowConfidenceSignalIgnored(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	h.strat.set(buySignal(0.5))

	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	if len(h.broker.submittedOrders()) != 0 {
		t.Fatalf("expected no order below the confidence threshold")
	}
}

func TestCooldownSuppressesRepeatSignals(t *testing.T) {
	h := newHarness(Options{Cooldown: 5 * time.Minute})
	h.breaker.Arm(100_000)
	h.strat.set(buySignal(0.9))

	base := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	now := base
	h.engine.now = func() time.Time { return now }

	h.engine.onTrade(context.Background(), trade("AAPL", 100))

	now = base.Add(time.Minute)
	h.engine.onTrade(context.Background(), trade("AAPL", 101))
	if got := len(h.broker.submittedOrders()); got != 1 {
		t.Fatalf("expected cooldown to suppress the second order, got %d", got)
	}

	now = base.Add(6 * time.Minute)
	h.engine.onTrade(context.Background(), trade("AAPL", 102))
	if got := len(h.broker.submittedOrders()); got != 2 {
		t.Fatalf("expected order after cooldown expiry, got %d", got)
	}
}

func TestRejectedSignalStartsCooldown(t *testing.T) {
	h := newHarness(Options{Cooldown: 5 * time.Minute})
	h.breaker.Arm(100_000)
	h.strat.set(buySignal(0.9))

	base := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	now := base
	h.engine.now = func() time.Time { return now }

	// the gate rejects while the market is closed, but the signal fired
	h.broker.mu.Lock()
	h.broker.clock.IsOpen = false
	h.broker.mu.Unlock()

	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	if got := len(h.broker.submittedOrders()); got != 0 {
		t.Fatalf("expected gate rejection, got %d orders", got)
	}
	if _, ok := h.book.LastSignalAt("AAPL"); !ok {
		t.Fatalf("a fired signal must start the cooldown even when the order is rejected")
	}

	h.broker.mu.Lock()
	h.broker.clock.IsOpen = true
	h.broker.mu.Unlock()

	now = base.Add(time.Minute)
	h.engine.onTrade(context.Background(), trade("AAPL", 101))
	if got := len(h.broker.submittedOrders()); got != 0 {
		t.Fatalf("expected cooldown to suppress the retry, got %d orders", got)
	}

	now = base.Add(6 * time.Minute)
	h.engine.onTrade(context.Background(), trade("AAPL", 102))
	if got := len(h.broker.submittedOrders()); got != 1 {
		t.Fatalf("expected order after cooldown expiry, got %d", got)
	}
}

func TestLowConfidenceSignalStartsCooldown(t *testing.T) {
	h := newHarness(Options{Cooldown: 5 * time.Minute})
	h.breaker.Arm(100_000)
	h.strat.set(buySignal(0.5))

	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	if len(h.broker.submittedOrders()) != 0 {
		t.Fatalf("expected no order below the confidence threshold")
	}
	if _, ok := h.book.LastSignalAt("AAPL"); !ok {
		t.Fatalf("a filtered actionable signal must still start the cooldown")
	}
}

func TestBuyDoesNotStackOnExistingLong(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	h.book.RecordFill(&models.Fill{OrderID: "x", Symbol: "AAPL", Side: models.SideBuy, Price: 100, Qty: 50})
	h.strat.set(buySignal(0.9))

	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	if len(h.broker.submittedOrders()) != 0 {
		t.Fatalf("expected no stacking buy")
	}
}

func TestSellClosesHeldQuantity(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	h.book.RecordFill(&models.Fill{OrderID: "x", Symbol: "AAPL", Side: models.SideBuy, Price: 95, Qty: 42})

	sig := buySignal(0.9)
	sig.Action = models.ActionSell
	h.strat.set(sig)

	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	orders := h.broker.submittedOrders()
	if len(orders) != 1 {
		t.Fatalf("expected one sell order, got %d", len(orders))
	}
	if orders[0].Side != models.SideSell || orders[0].Qty != 42 {
		t.Fatalf("sell must close the held quantity: %+v", orders[0])
	}
}

func TestSellWithoutPositionSkipped(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	sig := buySignal(0.9)
	sig.Action = models.ActionSell
	h.strat.set(sig)

	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	if len(h.broker.submittedOrders()) != 0 {
		t.Fatalf("a sell without a long position must be skipped")
	}
}

func TestReferenceSymbolFeedsRefCacheOnly(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	h.strat.set(buySignal(0.9))

	h.engine.onTrade(context.Background(), trade("SPY", 500))
	if len(h.broker.submittedOrders()) != 0 {
		t.Fatalf("reference symbol must not be traded")
	}
	if got := h.engine.refCache.TradeCount("SPY"); got != 1 {
		t.Fatalf("expected reference trade cached, got %d", got)
	}
	if got := h.engine.cache.TradeCount("SPY"); got != 0 {
		t.Fatalf("reference trades must not reach the traded cache, got %d", got)
	}
}

func TestPnLMonitorTripsBreakerAndFlattens(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	h.book.RecordFill(&models.Fill{OrderID: "x", Symbol: "AAPL", Side: models.SideBuy, Price: 100, Qty: 50})
	h.broker.account.Equity = 97_000 // -3% on the day

	h.engine.checkPnL(context.Background())

	if !h.breaker.Tripped() {
		t.Fatalf("expected breaker trip")
	}
	if h.broker.cancelAll == 0 {
		t.Fatalf("trip must cancel open orders")
	}
	if len(h.broker.closed) != 1 || h.broker.closed[0] != "AAPL" {
		t.Fatalf("trip must flatten positions, closed=%v", h.broker.closed)
	}
	if h.notifier.bySeverity(repository.SeverityCritical) == 0 {
		t.Fatalf("trip must page the operator")
	}

	// recovery does not untrip, and the flatten does not repeat
	h.broker.account.Equity = 101_000
	h.engine.checkPnL(context.Background())
	if !h.breaker.Tripped() {
		t.Fatalf("breaker must stay tripped for the session")
	}
	if len(h.broker.closed) != 1 {
		t.Fatalf("flatten must run once, closed=%v", h.broker.closed)
	}
}

func TestTrippedBreakerBlocksNewOrders(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	h.breaker.Trip()
	h.strat.set(buySignal(0.9))

	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	if len(h.broker.submittedOrders()) != 0 {
		t.Fatalf("tripped breaker must block submissions")
	}
}

func TestReconcileAdoptsBrokerPositions(t *testing.T) {
	h := newHarness(Options{})
	h.breaker.Arm(100_000)
	h.broker.positions = []models.BrokerPosition{{Symbol: "MSFT", Qty: 5, AvgEntryPrice: 400}}

	h.engine.reconcile(context.Background())
	pos, ok := h.book.Position("MSFT")
	if !ok || pos.Qty != 5 {
		t.Fatalf("expected adopted position, got %+v ok=%v", pos, ok)
	}
	if len(h.broker.submittedOrders()) != 0 {
		t.Fatalf("reconciliation must never submit orders")
	}
}

func TestHealthCheckReconnectsStaleStream(t *testing.T) {
	h := newHarness(Options{})
	base := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	h.engine.now = func() time.Time { return base }
	h.engine.onTrade(context.Background(), trade("AAPL", 100))

	h.engine.now = func() time.Time { return base.Add(10 * time.Minute) }
	h.engine.checkHealth(context.Background())

	h.stream.mu.Lock()
	reconnects := h.stream.reconnects
	h.stream.mu.Unlock()
	if reconnects != 1 {
		t.Fatalf("expected one reconnect request, got %d", reconnects)
	}
}

func TestHealthCheckQuietWhenFresh(t *testing.T) {
	h := newHarness(Options{})
	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	h.engine.checkHealth(context.Background())

	h.stream.mu.Lock()
	reconnects := h.stream.reconnects
	h.stream.mu.Unlock()
	if reconnects != 0 {
		t.Fatalf("healthy stream must not reconnect, got %d", reconnects)
	}
}

func TestAssumedFillUpdatesLedger(t *testing.T) {
	h := newHarness(Options{AssumeFills: true})
	h.breaker.Arm(100_000)
	h.strat.set(buySignal(0.9))

	h.engine.onTrade(context.Background(), trade("AAPL", 100))
	pos, ok := h.book.Position("AAPL")
	if !ok || pos.Qty != 100 {
		t.Fatalf("expected assumed fill to open the position, got %+v ok=%v", pos, ok)
	}
}

func TestFillEventUpdatesLedger(t *testing.T) {
	h := newHarness(Options{})
	h.engine.onFill(&models.Fill{OrderID: "o1", Symbol: "AAPL", Side: models.SideBuy, Price: 100, Qty: 10})
	pos, ok := h.book.Position("AAPL")
	if !ok || pos.Qty != 10 {
		t.Fatalf("expected position from fill, got %+v ok=%v", pos, ok)
	}
}
