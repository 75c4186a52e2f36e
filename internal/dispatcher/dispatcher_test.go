package dispatcher

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"
	"quant-agent-go/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger(models.LogConfig{Level: "error", Output: "console"})
	os.Exit(m.Run())
}

// fakeFeed lets tests push ticks by hand and records subscription churn.
type fakeFeed struct {
	mu           sync.Mutex
	callbacks    map[string]func(float64)
	unsubscribed []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{callbacks: make(map[string]func(float64))}
}

func (f *fakeFeed) FetchCandles(string, time.Time, time.Time, string) ([]models.Candle, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeFeed) GetCurrentPrice(string) (float64, error) { return 0, nil }

func (f *fakeFeed) SubscribePrice(symbol string, cb func(float64)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[symbol] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.callbacks, symbol)
		f.unsubscribed = append(f.unsubscribed, symbol)
	}, nil
}

func (f *fakeFeed) push(symbol string, price float64) {
	f.mu.Lock()
	cb := f.callbacks[symbol]
	f.mu.Unlock()
	if cb != nil {
		cb(price)
	}
}

func (f *fakeFeed) symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.callbacks))
	for s := range f.callbacks {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// fakeExec counts execution calls.
type fakeExec struct {
	mu     sync.Mutex
	orders []models.ExecutionRequest
}

func (e *fakeExec) ExecuteOrder(req models.ExecutionRequest) models.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = append(e.orders, req)
	return models.ExecutionResult{Success: true, OrderID: "x", FilledPrice: req.Price, FilledSize: req.Size}
}

func (e *fakeExec) ClosePosition(req models.ExecutionRequest) models.ExecutionResult {
	return e.ExecuteOrder(req)
}

func (e *fakeExec) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.orders)
}

// failingStrategy always errors on ticks; used to prove error isolation.
type failingStrategy struct{ cfg models.StrategyConfig }

func (s *failingStrategy) Start() error { return nil }
func (s *failingStrategy) Stop()        {}
func (s *failingStrategy) OnPriceUpdate(float64) (*strategy.TickResult, error) {
	return nil, fmt.Errorf("boom")
}
func (s *failingStrategy) Stats() models.StrategyStats   { return models.StrategyStats{} }
func (s *failingStrategy) Config() models.StrategyConfig { return s.cfg }

// closingStrategy reports one closed trade per tick.
type closingStrategy struct {
	cfg models.StrategyConfig
	seq int
}

func (s *closingStrategy) Start() error { return nil }
func (s *closingStrategy) Stop()        {}
func (s *closingStrategy) OnPriceUpdate(price float64) (*strategy.TickResult, error) {
	s.seq++
	return &strategy.TickResult{ClosedTrades: []models.TradeRecord{{
		ID:        fmt.Sprintf("%s-t%d", s.cfg.ID, s.seq),
		Symbol:    s.cfg.Symbol,
		Side:      models.Sell,
		ExitPrice: price,
		Size:      1,
		PnL:       1,
		ExitTime:  time.Now(),
		Reason:    "take_profit",
	}}}, nil
}
func (s *closingStrategy) Stats() models.StrategyStats   { return models.StrategyStats{} }
func (s *closingStrategy) Config() models.StrategyConfig { return s.cfg }

type fakeTradeLog struct {
	mu     sync.Mutex
	trades []models.TradeRecord
}

func (l *fakeTradeLog) AppendTrade(trade models.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, trade)
	return nil
}

func newGrid(t *testing.T, id string, stopLoss float64) *strategy.GridBot {
	g, err := strategy.NewGridBot(models.StrategyConfig{
		ID:           id,
		Name:         id,
		Type:         models.StrategyGridBot,
		Symbol:       "BTCUSDT",
		Leverage:     1,
		TotalCapital: 1000,
		Grid: &models.GridParams{
			UpperPrice:      110,
			LowerPrice:      90,
			GridCount:       10,
			StopLossPercent: stopLoss,
		},
	})
	require.NoError(t, err)
	require.NoError(t, g.Start())
	return g
}

func TestSyncSubscriptionsFollowsStrategySet(t *testing.T) {
	f := newFakeFeed()
	d := New(f, &fakeExec{}, nil, time.Millisecond)

	require.NoError(t, d.Register(newGrid(t, "g1", 10)))
	assert.Equal(t, []string{"BTCUSDT"}, f.symbols())

	arb, err := strategy.NewFundingArb(models.StrategyConfig{
		ID: "f1", Name: "f1", Type: models.StrategyFundingArb,
		Symbol: "ETHUSDT", Symbols: []string{"ETHUSDT", "SOLUSDT"},
		Leverage: 1, TotalCapital: 1000,
		FundingArb: &models.FundingArbParams{
			MinFundingRate: 0.0001, FundingPeriodsPerDay: 3,
			MaxConcurrentPositions: 1, MaxDrawdownPercent: 10,
			PositionSizePercent: 10,
		},
	})
	require.NoError(t, err)
	require.NoError(t, arb.Start())
	require.NoError(t, d.Register(arb))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, f.symbols())

	require.NoError(t, d.Unregister("f1"))
	assert.Equal(t, []string{"BTCUSDT"}, f.symbols())
	assert.Contains(t, f.unsubscribed, "ETHUSDT")
	assert.Contains(t, f.unsubscribed, "SOLUSDT")
}

func TestThrottleDropsFastTicks(t *testing.T) {
	f := newFakeFeed()
	e := &fakeExec{}
	d := New(f, e, nil, 80*time.Millisecond)
	require.NoError(t, d.Register(newGrid(t, "g1", 10)))

	// First tick initializes the grid and fills the level at 100.
	f.push("BTCUSDT", 100)
	require.Equal(t, 1, e.count())

	// Inside the throttle window the next tick is dropped, not queued.
	f.push("BTCUSDT", 95)
	assert.Equal(t, 1, e.count())

	// After the window the same price is accepted and fills a buy.
	time.Sleep(100 * time.Millisecond)
	f.push("BTCUSDT", 95)
	assert.Equal(t, 2, e.count())
}

func TestPerStrategyErrorIsolation(t *testing.T) {
	f := newFakeFeed()
	e := &fakeExec{}
	d := New(f, e, nil, time.Millisecond)

	// The failing strategy sorts first by ID, so it runs before the grid.
	fail := &failingStrategy{cfg: models.StrategyConfig{ID: "a-fail", Name: "a-fail", Symbol: "BTCUSDT"}}
	require.NoError(t, d.Register(fail))
	require.NoError(t, d.Register(newGrid(t, "b-grid", 10)))

	f.push("BTCUSDT", 100)

	// The grid still processed the tick and executed its fill.
	assert.Equal(t, 1, e.count())
}

func TestCircuitBreakerDisablesHaltedGrid(t *testing.T) {
	f := newFakeFeed()
	e := &fakeExec{}
	d := New(f, e, nil, time.Millisecond)
	g := newGrid(t, "g1", 1)
	require.NoError(t, d.Register(g))

	f.push("BTCUSDT", 100)
	time.Sleep(5 * time.Millisecond)
	f.push("BTCUSDT", 80) // deep crash breaches the 1% stop

	assert.True(t, g.Stats().StopLossTriggered)
	assert.False(t, g.Stats().Running, "breaker must stop the instance")
	// No enabled strategy needs the symbol anymore: subscription dropped.
	assert.Empty(t, f.symbols())

	// Later ticks are no-ops for the disabled instance.
	before := e.count()
	f.push("BTCUSDT", 95)
	assert.Equal(t, before, e.count())
}

func TestClosedTradesReachTradeLog(t *testing.T) {
	f := newFakeFeed()
	e := &fakeExec{}
	d := New(f, e, nil, time.Millisecond)
	tl := &fakeTradeLog{}
	d.SetTradeLog(tl)

	s := &closingStrategy{cfg: models.StrategyConfig{ID: "c1", Name: "c1", Symbol: "BTCUSDT"}}
	require.NoError(t, d.Register(s))

	f.push("BTCUSDT", 100)

	tl.mu.Lock()
	defer tl.mu.Unlock()
	require.Len(t, tl.trades, 1)
	assert.Equal(t, "c1-t1", tl.trades[0].ID)
	assert.Equal(t, "take_profit", tl.trades[0].Reason)
}

func TestSetThrottleInterval(t *testing.T) {
	f := newFakeFeed()
	e := &fakeExec{}
	d := New(f, e, nil, time.Hour)
	require.NoError(t, d.Register(newGrid(t, "g1", 10)))

	f.push("BTCUSDT", 100)
	require.Equal(t, 1, e.count())

	// With an hour-long window the next tick would be dropped; shrinking
	// the interval takes effect immediately.
	d.SetThrottleInterval(time.Nanosecond)
	time.Sleep(time.Millisecond)
	f.push("BTCUSDT", 95)
	assert.Equal(t, 2, e.count())
}
