package dispatcher

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"quant-agent-go/internal/executor"
	"quant-agent-go/internal/feed"
	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"
	"quant-agent-go/internal/notifier"
	"quant-agent-go/internal/strategy"

	"go.uber.org/zap"
)

// positionLogSample 资金费率套利持仓快照的日志采样间隔（tick数）
const positionLogSample = 10

// subscription 一个交易对的行情订阅与节流状态
type subscription struct {
	symbol      string
	unsubscribe func()
	lastTickNs  atomic.Int64 // 最近一次被接受的tick时间，节流判断的共享状态
}

type entry struct {
	strat    strategy.Strategy
	disabled bool
}

// TradeLog 接收已完成交易的持久化落账
type TradeLog interface {
	AppendTrade(trade models.TradeRecord) error
}

// Dispatcher 行情调度器：按需维护每个交易对的订阅，
// 对行情做最小间隔节流（超速tick直接丢弃，不排队），
// 再把被接受的tick串行分发给订阅该交易对的所有策略实例。
type Dispatcher struct {
	source     feed.Source
	exec       executor.Executor
	notify     notifier.Notifier
	throttleNs atomic.Int64
	log        *zap.SugaredLogger

	mu         sync.Mutex
	strategies map[string]*entry        // 按策略ID
	subs       map[string]*subscription // 按交易对
	tickCount  map[string]int64
	trades     TradeLog
}

func New(source feed.Source, exec executor.Executor, notify notifier.Notifier, throttleInterval time.Duration) *Dispatcher {
	d := &Dispatcher{
		source:     source,
		exec:       exec,
		notify:     notify,
		log:        logger.Named("dispatcher"),
		strategies: make(map[string]*entry),
		subs:       make(map[string]*subscription),
		tickCount:  make(map[string]int64),
	}
	if throttleInterval <= 0 {
		throttleInterval = time.Second
	}
	d.throttleNs.Store(int64(throttleInterval))
	return d
}

// SetTradeLog 接入可选的交易落账通道，nil 表示不落账
func (d *Dispatcher) SetTradeLog(log TradeLog) {
	d.mu.Lock()
	d.trades = log
	d.mu.Unlock()
}

// SetThrottleInterval 在运行中调整节流间隔，立即对后续tick生效
func (d *Dispatcher) SetThrottleInterval(interval time.Duration) {
	if interval > 0 {
		d.throttleNs.Store(int64(interval))
	}
}

// Register 挂载一个策略实例并同步订阅
func (d *Dispatcher) Register(s strategy.Strategy) error {
	id := s.Config().ID
	d.mu.Lock()
	if _, exists := d.strategies[id]; exists {
		d.mu.Unlock()
		return fmt.Errorf("策略 %q 已挂载", id)
	}
	d.strategies[id] = &entry{strat: s}
	d.mu.Unlock()
	return d.SyncSubscriptions()
}

// Unregister 摘除一个策略实例并同步订阅
func (d *Dispatcher) Unregister(id string) error {
	d.mu.Lock()
	delete(d.strategies, id)
	d.mu.Unlock()
	return d.SyncSubscriptions()
}

// SyncSubscriptions 让订阅集合与当前启用策略所需的交易对集合一致。
// 启用策略集合变化后必须调用。
func (d *Dispatcher) SyncSubscriptions() error {
	d.mu.Lock()
	needed := make(map[string]bool)
	for _, e := range d.strategies {
		if e.disabled {
			continue
		}
		for _, sym := range strategySymbols(e.strat) {
			needed[sym] = true
		}
	}

	var stale []*subscription
	for sym, sub := range d.subs {
		if !needed[sym] {
			stale = append(stale, sub)
			delete(d.subs, sym)
		}
	}
	var missing []string
	for sym := range needed {
		if _, ok := d.subs[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	sort.Strings(missing)
	d.mu.Unlock()

	for _, sub := range stale {
		sub.unsubscribe()
		d.log.Infof("退订行情: %s", sub.symbol)
	}
	for _, sym := range missing {
		sub := &subscription{symbol: sym}
		symbol := sym
		unsub, err := d.source.SubscribePrice(symbol, func(price float64) {
			d.onTick(symbol, price)
		})
		if err != nil {
			return fmt.Errorf("订阅 %s 失败: %w", symbol, err)
		}
		sub.unsubscribe = unsub
		d.mu.Lock()
		d.subs[sym] = sub
		d.mu.Unlock()
		d.log.Infof("订阅行情: %s", sym)
	}
	return nil
}

// strategySymbols 返回一个策略实例需要的全部交易对
func strategySymbols(s strategy.Strategy) []string {
	if arb, ok := s.(*strategy.FundingArb); ok {
		return arb.Symbols()
	}
	return []string{s.Config().Symbol}
}

// onTick 单个交易对的tick入口。
// 节流采用后到优先：间隔内的tick直接丢弃；节流时间戳在分发前
// 原子更新，避免同一交易对的并发投递造成重复分发。
func (d *Dispatcher) onTick(symbol string, price float64) {
	d.mu.Lock()
	sub, ok := d.subs[symbol]
	d.mu.Unlock()
	if !ok {
		return
	}

	now := time.Now().UnixNano()
	last := sub.lastTickNs.Load()
	if now-last < d.throttleNs.Load() {
		return
	}
	if !sub.lastTickNs.CompareAndSwap(last, now) {
		return // 另一个并发投递已经抢先接受了这个间隔
	}

	d.dispatch(symbol, price)
}

// dispatch 把一个被接受的tick按策略ID顺序串行喂给订阅者。
// 单个策略的错误只记日志，不中断同一tick对其他策略的分发。
func (d *Dispatcher) dispatch(symbol string, price float64) {
	d.mu.Lock()
	d.tickCount[symbol]++
	count := d.tickCount[symbol]
	ids := make([]string, 0, len(d.strategies))
	for id, e := range d.strategies {
		if e.disabled {
			continue
		}
		for _, sym := range strategySymbols(e.strat) {
			if sym == symbol {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	targets := make([]*entry, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, d.strategies[id])
	}
	d.mu.Unlock()

	now := time.Now()
	for _, e := range targets {
		if consumer, ok := e.strat.(strategy.CandleConsumer); ok {
			consumer.PushCandle(models.Candle{
				OpenTime: now, Open: price, High: price, Low: price, Close: price,
			})
		}

		var res *strategy.TickResult
		var err error
		if arb, ok := e.strat.(*strategy.FundingArb); ok {
			res, err = arb.OnSymbolTick(symbol, price)
		} else {
			res, err = e.strat.OnPriceUpdate(price)
		}
		if err != nil {
			d.log.Errorf("策略 %s 处理tick失败: %v", e.strat.Config().Name, err)
			continue
		}
		d.handleResult(e, symbol, price, res, count)
	}
}

// handleResult 按策略类型解释tick输出
func (d *Dispatcher) handleResult(e *entry, symbol string, price float64, res *strategy.TickResult, tickNo int64) {
	cfg := e.strat.Config()

	for _, order := range res.FilledOrders {
		exec := d.exec.ExecuteOrder(models.ExecutionRequest{
			Symbol: symbol,
			Side:   order.Side,
			Size:   order.Size,
			Price:  order.Price,
			Reason: "grid_fill",
		})
		if !exec.Success {
			d.log.Errorf("策略 %s 网格单执行失败: %s", cfg.Name, exec.Error)
		}
	}

	for _, trade := range res.ClosedTrades {
		d.log.Infof("策略 %s 平仓: %s %s @%.4f 盈亏 %.4f (%s)",
			cfg.Name, trade.Symbol, trade.Side, trade.ExitPrice, trade.PnL, trade.Reason)
		exec := d.exec.ClosePosition(models.ExecutionRequest{
			Symbol: trade.Symbol,
			Side:   trade.Side,
			Size:   trade.Size,
			Price:  trade.ExitPrice,
			Reason: trade.Reason,
		})
		if !exec.Success {
			d.log.Errorf("策略 %s 平仓执行失败: %s", cfg.Name, exec.Error)
		}
		d.appendTrade(trade)
	}

	if res.OpenedPosition != nil {
		pos := res.OpenedPosition
		side := models.Buy
		if pos.Direction == models.Short {
			side = models.Sell
		}
		exec := d.exec.ExecuteOrder(models.ExecutionRequest{
			Symbol: pos.Symbol,
			Side:   side,
			Size:   pos.Size,
			Price:  pos.EntryPrice,
			Reason: "signal",
		})
		if !exec.Success {
			d.log.Errorf("策略 %s 开仓执行失败: %s", cfg.Name, exec.Error)
		}
	}

	// 风控熔断：网格触发总止损后摘除该实例，不影响其他策略
	if res.StopLossTriggered && !e.disabled {
		d.disable(e)
	}

	// 持仓快照按采样间隔记录，避免刷屏
	if len(res.Positions) > 0 && tickNo%positionLogSample == 0 {
		d.log.Infof("策略 %s 持仓 %d 个 (%s @%.4f)", cfg.Name, len(res.Positions), symbol, price)
	}
}

// appendTrade 把已平仓交易写进落账通道，失败只记日志
func (d *Dispatcher) appendTrade(trade models.TradeRecord) {
	d.mu.Lock()
	log := d.trades
	d.mu.Unlock()
	if log == nil {
		return
	}
	if err := log.AppendTrade(trade); err != nil {
		d.log.Warnf("交易落账失败 %s: %v", trade.ID, err)
	}
}

// disable 停用单个策略实例并发出告警
func (d *Dispatcher) disable(e *entry) {
	cfg := e.strat.Config()
	d.mu.Lock()
	e.disabled = true
	d.mu.Unlock()
	e.strat.Stop()
	d.log.Warnf("策略 %s 触发止损熔断，已停用", cfg.Name)
	if d.notify != nil {
		d.notify.Notify(models.Alert{
			Level:   models.AlertCritical,
			Title:   "策略熔断",
			Message: fmt.Sprintf("策略 %s (%s) 触发总资金止损，已停用", cfg.Name, cfg.Symbol),
		})
	}
	if err := d.SyncSubscriptions(); err != nil {
		d.log.Errorf("熔断后同步订阅失败: %v", err)
	}
}

// Stop 退订全部行情并停止所有策略
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	subs := make([]*subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.subs = make(map[string]*subscription)
	entries := make([]*entry, 0, len(d.strategies))
	for _, e := range d.strategies {
		entries = append(entries, e)
	}
	d.mu.Unlock()

	for _, sub := range subs {
		sub.unsubscribe()
	}
	for _, e := range entries {
		e.strat.Stop()
	}
	d.log.Infof("调度器已停止")
}
