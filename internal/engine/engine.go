package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/ledger"
	"TradePulse/internal/marketdata"
	"TradePulse/internal/risk"
	"TradePulse/internal/strategy"
	"TradePulse/pkg/logger"
)

const (
	defaultPnLInterval       = 5 * time.Minute
	defaultReconcileInterval = 10 * time.Minute
	defaultHealthInterval    = 30 * time.Minute
	defaultCooldown          = 5 * time.Minute
	defaultMarketOpenPoll    = 60 * time.Second

	// quotes wider than this fraction of the bid get a warning
	wideSpreadFraction = 0.005
)

// Options tunes the engine's cadences. The zero value selects production
// defaults; tests shorten the intervals.
type Options struct {
	PnLInterval       time.Duration
	ReconcileInterval time.Duration
	HealthInterval    time.Duration
	Cooldown          time.Duration
	MarketOpenPoll    time.Duration

	// AssumeFills records a synthetic immediate fill after each accepted
	// submission, for feeds that carry no execution events.
	AssumeFills bool
}

func (o *Options) applyDefaults() {
	if o.PnLInterval <= 0 {
		o.PnLInterval = defaultPnLInterval
	}
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = defaultReconcileInterval
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = defaultHealthInterval
	}
	if o.Cooldown <= 0 {
		o.Cooldown = defaultCooldown
	}
	if o.MarketOpenPoll <= 0 {
		o.MarketOpenPoll = defaultMarketOpenPoll
	}
}

// Engine is the single event loop tying the cache, strategies, risk checks
// and broker together. All trading state mutations happen on the loop
// goroutine; timers and stream channels are multiplexed into it.
type Engine struct {
	symbols       []string
	refSymbol     string
	minConfidence float64
	opts          Options

	cache    *marketdata.Cache
	refCache *marketdata.Cache
	strat    strategy.Strategy
	sizer    *risk.Sizer
	gate     *risk.Gate
	breaker  *risk.CircuitBreaker
	book     *ledger.Ledger

	broker   repository.Broker
	stream   repository.MarketStream
	notifier repository.Notifier
	journal  repository.Journal
	metrics  repository.Metrics
	log      *logger.Logger

	session *session
	now     func() time.Time

	mu         sync.Mutex
	tickCount  int64
	lastTickAt time.Time
	orderSeq   int64
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Symbols       []string
	RefSymbol     string
	MinConfidence float64

	Cache    *marketdata.Cache
	RefCache *marketdata.Cache
	Strategy strategy.Strategy
	Sizer    *risk.Sizer
	Gate     *risk.Gate
	Breaker  *risk.CircuitBreaker
	Ledger   *ledger.Ledger

	Broker   repository.Broker
	Stream   repository.MarketStream
	Notifier repository.Notifier
	Journal  repository.Journal
	Metrics  repository.Metrics
	Log      *logger.Logger
}

func New(deps Deps, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		symbols:       deps.Symbols,
		refSymbol:     deps.RefSymbol,
		minConfidence: deps.MinConfidence,
		opts:          opts,
		cache:         deps.Cache,
		refCache:      deps.RefCache,
		strat:         deps.Strategy,
		sizer:         deps.Sizer,
		gate:          deps.Gate,
		breaker:       deps.Breaker,
		book:          deps.Ledger,
		broker:        deps.Broker,
		stream:        deps.Stream,
		notifier:      deps.Notifier,
		journal:       deps.Journal,
		metrics:       deps.Metrics,
		log:           deps.Log,
		session:       newSession(),
		now:           time.Now,
	}
}

// State returns the current session state for the status API.
func (e *Engine) State() SessionState { return e.session.get() }

// TickCount returns how many trades the loop has ingested.
func (e *Engine) TickCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickCount
}

// LastTickAt returns the arrival time of the most recent trade.
func (e *Engine) LastTickAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTickAt
}

func (e *Engine) setState(s SessionState) {
	if e.session.set(s) {
		e.metrics.RecordSessionState(string(s))
		e.log.Info("session state", logger.String("state", string(s)))
	}
}

// Run drives one trading session from startup validation to shutdown.
// It returns when ctx is cancelled (graceful stop) or on fatal failure.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateStarting)

	if err := e.stream.Connect(ctx); err != nil {
		return e.fatal(ctx, fmt.Errorf("connect stream: %w", err))
	}
	defer e.stream.Close()

	e.setState(StateValidatingConfig)
	account, err := e.getAccount(ctx)
	if err != nil {
		return e.fatal(ctx, fmt.Errorf("validate account: %w", err))
	}
	if account.TradingBlocked {
		e.notifier.Notify(ctx, "account is blocked from trading, refusing to start", repository.SeverityCritical)
		return e.fatal(ctx, fmt.Errorf("account trading blocked"))
	}
	e.breaker.Arm(account.Equity)
	e.log.Info("account validated",
		logger.Float64("equity", account.Equity),
		logger.Float64("buying_power", account.BuyingPower))

	e.setState(StateWaitingForOpen)
	if err := e.waitForOpen(ctx); err != nil {
		e.shutdown(fmt.Errorf("interrupted before open"))
		return nil
	}

	if err := e.stream.Subscribe(ctx); err != nil {
		return e.fatal(ctx, fmt.Errorf("subscribe: %w", err))
	}

	// seed the tick clock so a feed that never delivers a single tick
	// still trips the staleness check
	e.mu.Lock()
	e.lastTickAt = e.now()
	e.mu.Unlock()

	e.setState(StateRunning)
	e.notifier.Notify(ctx, fmt.Sprintf("session started, trading %d symbols", len(e.symbols)), repository.SeverityLow)
	e.loop(ctx)

	e.shutdown(nil)
	return nil
}

// waitForOpen polls the broker clock until the market opens.
func (e *Engine) waitForOpen(ctx context.Context) error {
	for {
		clock, err := e.getClock(ctx)
		if err == nil && clock.IsOpen {
			return nil
		}
		if err != nil {
			e.log.Warn("clock check failed, retrying", logger.Error(err))
			e.metrics.RecordError("clock")
		} else {
			e.log.Info("market closed, waiting",
				logger.Time("next_open", clock.NextOpen))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.opts.MarketOpenPoll):
		}
	}
}

// loop multiplexes the tick stream, fill events and the three monitors
// until ctx is cancelled. Trades and quotes are applied in arrival order.
func (e *Engine) loop(ctx context.Context) {
	trades, quotes, streamErrs := e.stream.Read(ctx)
	fills := e.stream.Fills(ctx)

	pnlTicker := time.NewTicker(e.opts.PnLInterval)
	defer pnlTicker.Stop()
	reconcileTicker := time.NewTicker(e.opts.ReconcileInterval)
	defer reconcileTicker.Stop()
	healthTicker := time.NewTicker(e.opts.HealthInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-trades:
			if !ok {
				return
			}
			e.onTrade(ctx, t)
		case q, ok := <-quotes:
			if !ok {
				return
			}
			e.onQuote(q)
		case f, ok := <-fills:
			if !ok {
				fills = nil
				continue
			}
			e.onFill(f)
		case err, ok := <-streamErrs:
			if !ok {
				streamErrs = nil
				continue
			}
			e.log.Warn("stream error", logger.Error(err))
			e.metrics.RecordError("stream")
		case <-pnlTicker.C:
			e.checkPnL(ctx)
		case <-reconcileTicker.C:
			e.reconcile(ctx)
		case <-healthTicker.C:
			e.checkHealth(ctx)
		}
	}
}

func (e *Engine) onTrade(ctx context.Context, t *models.Trade) {
	e.mu.Lock()
	e.tickCount++
	e.lastTickAt = e.now()
	e.mu.Unlock()

	e.metrics.RecordTick(t.Symbol)
	e.metrics.RecordLastPrice(t.Symbol, t.Price)

	if t.Symbol == e.refSymbol {
		e.refCache.AddTrade(t.Symbol, t.Price, t.Size, t.Timestamp)
		return
	}
	e.cache.AddTrade(t.Symbol, t.Price, t.Size, t.Timestamp)
	e.evaluate(ctx, t.Symbol)
}

func (e *Engine) onQuote(q *models.Quote) {
	if q.Symbol == e.refSymbol {
		e.refCache.AddQuote(q.Symbol, q.Bid, q.Ask, q.BidSize, q.AskSize, q.Timestamp)
		return
	}
	e.cache.AddQuote(q.Symbol, q.Bid, q.Ask, q.BidSize, q.AskSize, q.Timestamp)

	if q.Bid > 0 && q.Spread() > q.Bid*wideSpreadFraction {
		e.log.Warn("unusually wide spread",
			logger.String("symbol", q.Symbol),
			logger.Float64("bid", q.Bid),
			logger.Float64("ask", q.Ask))
	}
}

func (e *Engine) onFill(f *models.Fill) {
	e.book.RecordFill(f)
	e.log.Info("fill recorded",
		logger.String("symbol", f.Symbol),
		logger.String("side", string(f.Side)),
		logger.Float64("price", f.Price),
		logger.Float64("qty", f.Qty))
}

// evaluate runs the strategy for one symbol and pushes any accepted order
// to the broker. Called from the loop goroutine after each trade.
func (e *Engine) evaluate(ctx context.Context, symbol string) {
	if last, ok := e.book.LastSignalAt(symbol); ok && e.now().Sub(last) < e.opts.Cooldown {
		e.log.Debug("cooldown active, skipping evaluation",
			logger.String("symbol", symbol),
			logger.Time("last_signal", last))
		return
	}

	started := e.now()
	sig := e.strat.Evaluate(symbol, e.cache)
	e.metrics.RecordLatency("evaluate", e.now().Sub(started).Seconds())
	e.metrics.RecordSignal(sig.Strategy, string(sig.Action))
	e.book.RecordSignal(sig)

	if err := e.journal.RecordSignal(ctx, sig); err != nil {
		e.log.Warn("journal signal failed", logger.Error(err))
	}
	if !sig.Actionable() {
		return
	}
	// the cooldown starts when a signal fires, not when an order lands:
	// a rejected or filtered signal must not be retried on the next tick
	e.book.MarkSignal(symbol, e.now())
	if sig.Confidence < e.minConfidence {
		e.log.Debug("signal below confidence threshold",
			logger.String("symbol", symbol),
			logger.Float64("confidence", sig.Confidence))
		return
	}
	e.log.Info("actionable signal",
		logger.String("symbol", symbol),
		logger.String("action", string(sig.Action)),
		logger.Float64("confidence", sig.Confidence),
		logger.String("reason", sig.Reason))

	e.submit(ctx, sig)
}

// submit sizes, gates and places one order for an actionable signal.
func (e *Engine) submit(ctx context.Context, sig models.Signal) {
	price, ok := e.cache.LastPrice(sig.Symbol)
	if !ok || price <= 0 {
		e.log.Warn("no usable price for signal", logger.String("symbol", sig.Symbol))
		return
	}

	pos, havePos := e.book.Position(sig.Symbol)
	side := models.SideBuy
	if sig.Action == models.ActionSell {
		side = models.SideSell
	}

	// position-aware filtering: don't stack longs, and a SELL without a
	// long position is a no-op rather than an implicit short
	if side == models.SideBuy && havePos && pos.Qty > 0 {
		e.log.Debug("already long, skipping buy", logger.String("symbol", sig.Symbol))
		return
	}
	if side == models.SideSell && (!havePos || pos.Qty <= 0) {
		e.log.Debug("no long position to sell", logger.String("symbol", sig.Symbol))
		return
	}

	account, err := e.getAccount(ctx)
	if err != nil {
		e.log.Warn("account read failed, skipping cycle", logger.Error(err))
		e.metrics.RecordError("account")
		return
	}
	clock, err := e.getClock(ctx)
	if err != nil {
		e.log.Warn("clock read failed, skipping cycle", logger.Error(err))
		e.metrics.RecordError("clock")
		return
	}

	var qty float64
	if side == models.SideSell {
		// a sell closes what we hold
		qty = pos.Qty
	} else {
		qty = e.sizer.Size(sig.Symbol, price, account.Equity, e.cache)
	}

	verdict := e.gate.ValidateOrder(sig.Symbol, qty, side, price, account,
		clock.IsOpen, e.book.DailyPnL(account.Equity))
	if verdict.Tripped {
		e.onBreakerTrip(ctx)
	}
	if !verdict.OK {
		e.metrics.RecordRejection(verdict.Reason)
		e.log.Info("order rejected",
			logger.String("symbol", sig.Symbol),
			logger.String("reason", verdict.Reason))
		return
	}

	order := &models.Order{
		ID:         e.nextOrderID(sig.Symbol),
		Symbol:     sig.Symbol,
		Side:       side,
		Qty:        qty,
		LimitPrice: price,
		CreatedAt:  e.now(),
	}
	if side == models.SideBuy {
		order.Bracket = ledger.BuildBracket(side, price, sig.StopLossPct, sig.TakeProfitPct)
	}

	handle, err := e.broker.SubmitOrder(ctx, order)
	if err != nil {
		e.log.Error("order submission failed",
			logger.String("symbol", sig.Symbol),
			logger.Error(err))
		e.metrics.RecordError("submit")
		return
	}
	if handle != "" {
		order.ID = handle
	}

	e.book.RecordSubmission(order)
	e.metrics.RecordOrder(sig.Symbol, string(side))
	if err := e.journal.RecordOrder(ctx, order, "submitted"); err != nil {
		e.log.Warn("journal order failed", logger.Error(err))
	}
	e.notifier.Notify(ctx,
		fmt.Sprintf("%s %s %.0f @ %.2f (%s)", side, sig.Symbol, qty, price, sig.Reason),
		repository.SeverityMedium)
	e.log.Info("order submitted",
		logger.String("id", order.ID),
		logger.String("symbol", order.Symbol),
		logger.String("side", string(side)),
		logger.Float64("qty", qty),
		logger.Float64("limit", price))

	if e.opts.AssumeFills {
		e.onFill(&models.Fill{
			OrderID:   order.ID,
			Symbol:    order.Symbol,
			Side:      order.Side,
			Price:     price,
			Qty:       qty,
			Timestamp: e.now(),
		})
	}
}

// checkPnL refreshes equity and trips the breaker on a breached loss limit.
func (e *Engine) checkPnL(ctx context.Context) {
	account, err := e.getAccount(ctx)
	if err != nil {
		e.log.Warn("pnl check: account read failed", logger.Error(err))
		e.metrics.RecordError("account")
		return
	}
	pnl := e.book.DailyPnL(account.Equity)
	e.metrics.RecordDailyPnL(pnl)
	e.log.Info("daily pnl",
		logger.Float64("pnl", pnl),
		logger.Float64("equity", account.Equity))

	if e.breaker.Tripped() {
		return
	}
	if pnl < -account.Equity*e.gate.MaxDailyLossPct() {
		if e.breaker.Trip() {
			e.onBreakerTrip(ctx)
		}
	}
}

// onBreakerTrip halts trading for the session: cancel everything resting,
// flatten every position, and page the operator.
func (e *Engine) onBreakerTrip(ctx context.Context) {
	e.metrics.RecordBreaker(true)
	e.log.Error("circuit breaker tripped, flattening all positions")
	e.notifier.Notify(ctx, "circuit breaker tripped: daily loss limit breached, trading halted", repository.SeverityCritical)

	if err := e.broker.CancelAllOrders(ctx); err != nil {
		e.log.Error("cancel all orders failed", logger.Error(err))
		e.metrics.RecordError("cancel")
	}
	e.book.CancelOpen()
	for _, pos := range e.book.Positions() {
		if err := e.broker.ClosePosition(ctx, pos.Symbol); err != nil {
			e.log.Error("close position failed",
				logger.String("symbol", pos.Symbol),
				logger.Error(err))
			e.metrics.RecordError("close")
		}
	}
}

// reconcile adopts broker positions the ledger does not know about.
func (e *Engine) reconcile(ctx context.Context) {
	positions, err := e.broker.ListPositions(ctx)
	if err != nil {
		e.log.Warn("reconcile: list positions failed", logger.Error(err))
		e.metrics.RecordError("reconcile")
		return
	}
	if adopted := e.book.Reconcile(positions); adopted > 0 {
		e.notifier.Notify(ctx,
			fmt.Sprintf("reconciliation adopted %d untracked position(s)", adopted),
			repository.SeverityMedium)
	}
}

// checkHealth requests a stream reconnect after prolonged tick silence.
func (e *Engine) checkHealth(ctx context.Context) {
	e.mu.Lock()
	last := e.lastTickAt
	e.mu.Unlock()

	stale := !last.IsZero() && e.now().Sub(last) > repository.StalenessThreshold
	if !stale && e.stream.IsConnected() {
		return
	}

	e.log.Warn("tick stream unhealthy, requesting reconnect",
		logger.Time("last_tick", last),
		logger.Bool("connected", e.stream.IsConnected()))
	e.metrics.RecordError("stale_stream")
	if err := e.stream.Reconnect(ctx); err != nil {
		e.log.Error("stream reconnect failed", logger.Error(err))
		e.notifier.Notify(ctx, "tick stream reconnect failed", repository.SeverityHigh)
	}
}

// shutdown runs the ordered stop sequence: the subscription is already
// cancelled by the time we get here (ctx), then open orders are cancelled,
// the daily summary flushed, and only then does the session reach STOPPED.
func (e *Engine) shutdown(cause error) {
	e.setState(StateShuttingDown)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.broker.CancelAllOrders(ctx); err != nil {
		e.log.Error("shutdown: cancel all orders failed", logger.Error(err))
	}
	cancelled := e.book.CancelOpen()

	e.flushSummary(ctx, cancelled)

	if cause != nil {
		e.log.Warn("session ended early", logger.Error(cause))
	}
	e.setState(StateStopped)
}

// flushSummary emits the end-of-session report and flushes the journal.
func (e *Engine) flushSummary(ctx context.Context, cancelled int) {
	orders, fills := e.book.Counters()
	summary := fmt.Sprintf("session summary: %d ticks, %d orders, %d fills, %d open positions, %d cancelled",
		e.TickCount(), orders, fills, len(e.book.Positions()), cancelled)

	if account, err := e.getAccount(ctx); err == nil {
		pnl := e.book.DailyPnL(account.Equity)
		e.metrics.RecordDailyPnL(pnl)
		summary += fmt.Sprintf(", daily pnl %.2f", pnl)
	}

	e.log.Info(summary)
	e.notifier.Notify(ctx, summary, repository.SeverityLow)
	if err := e.journal.Flush(ctx); err != nil {
		e.log.Warn("journal flush failed", logger.Error(err))
	}
}

func (e *Engine) fatal(ctx context.Context, err error) error {
	e.log.Error("fatal failure", logger.Error(err))
	e.metrics.RecordError("fatal")
	e.notifier.Notify(ctx, fmt.Sprintf("fatal: %v", err), repository.SeverityCritical)
	e.session.set(StateError)
	e.metrics.RecordSessionState(string(StateError))
	return err
}

// getAccount reads a fresh snapshot with a single retry on failure.
func (e *Engine) getAccount(ctx context.Context) (models.AccountSnapshot, error) {
	account, err := e.broker.GetAccount(ctx)
	if err == nil {
		return account, nil
	}
	e.log.Warn("account read failed, retrying once", logger.Error(err))
	return e.broker.GetAccount(ctx)
}

// getClock reads the venue clock with a single retry on failure.
func (e *Engine) getClock(ctx context.Context) (models.Clock, error) {
	clock, err := e.broker.GetClock(ctx)
	if err == nil {
		return clock, nil
	}
	e.log.Warn("clock read failed, retrying once", logger.Error(err))
	return e.broker.GetClock(ctx)
}

func (e *Engine) nextOrderID(symbol string) string {
	e.mu.Lock()
	e.orderSeq++
	seq := e.orderSeq
	e.mu.Unlock()
	return fmt.Sprintf("%s-%d-%d", symbol, e.now().UnixNano(), seq)
}
