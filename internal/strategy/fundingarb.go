package strategy

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"go.uber.org/zap"
)

const (
	// 费率衰减到入场费率的该比例以下时直接平仓
	rateDecayCloseRatio = 0.3
	// 获利了结路径使用的费率衰减阈值
	rateDecayProfitRatio = 0.5
)

// FundingArb 资金费率套利：持仓方向永远选在资金费的收取方，
// 靠周期性结算的资金费积累收益，价格风险由回撤阈值兜底。
type FundingArb struct {
	cfg    models.StrategyConfig
	params models.FundingArbParams
	log    *zap.SugaredLogger
	nowFn  Clock

	mu          sync.Mutex
	running     bool
	positions   map[string]*models.Position
	prices      map[string]float64
	rates       map[string]float64
	peakPnL     map[string]float64 // 每个持仓 (资金费+交易) 总盈亏的历史峰值
	realizedPnL float64
	totalTrades int
	wins        int
	losses      int
	tradeSeq    int
}

func NewFundingArb(cfg models.StrategyConfig) (*FundingArb, error) {
	if cfg.Type != models.StrategyFundingArb || cfg.FundingArb == nil {
		return nil, fmt.Errorf("配置类型 %s 不是资金费率套利策略", cfg.Type)
	}
	return &FundingArb{
		cfg:       cfg,
		params:    *cfg.FundingArb,
		log:       logger.Named("fundingarb." + cfg.Name),
		nowFn:     time.Now,
		positions: make(map[string]*models.Position),
		prices:    make(map[string]float64),
		rates:     make(map[string]float64),
		peakPnL:   make(map[string]float64),
	}, nil
}

func (f *FundingArb) SetClock(fn Clock) { f.nowFn = fn }

// Symbols 返回策略关注的全部交易对
func (f *FundingArb) Symbols() []string {
	if len(f.cfg.Symbols) > 0 {
		return f.cfg.Symbols
	}
	return []string{f.cfg.Symbol}
}

func (f *FundingArb) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		f.log.Warnf("策略已在运行，忽略重复启动")
		return nil
	}
	f.running = true
	f.log.Infof("资金费率套利启动: %v 最小费率 %.4f%% 最大并发 %d",
		f.Symbols(), f.params.MinFundingRate*100, f.params.MaxConcurrentPositions)
	return nil
}

func (f *FundingArb) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	f.log.Infof("资金费率套利停止: 已实现盈亏 %.4f", f.realizedPnL)
}

// OnPriceUpdate 实现统一契约，作用于主交易对
func (f *FundingArb) OnPriceUpdate(price float64) (*TickResult, error) {
	return f.OnSymbolTick(f.cfg.Symbol, price)
}

// OnSymbolTick 更新某个交易对的标记价，并检查价格路径上的平仓条件
func (f *FundingArb) OnSymbolTick(symbol string, price float64) (*TickResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := &TickResult{}
	if !f.running {
		return res, nil
	}
	f.prices[symbol] = price

	if pos, ok := f.positions[symbol]; ok {
		total := f.totalPnL(pos, price)
		if total > f.peakPnL[symbol] {
			f.peakPnL[symbol] = total
		}
		if should, reason := f.shouldClosePosition(pos, f.rates[symbol], price); should {
			f.closePosition(pos, price, reason, res)
		}
	}
	res.Positions = f.snapshotPositions()
	return res, nil
}

// OnFundingRate 处理一次资金费率结算：
// 有持仓则先结算资金费再评估平仓，无持仓则评估开仓机会。
func (f *FundingArb) OnFundingRate(symbol string, rate float64) (*TickResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := &TickResult{}
	if !f.running {
		return res, nil
	}
	f.rates[symbol] = rate
	price := f.prices[symbol]

	if pos, ok := f.positions[symbol]; ok {
		f.recordFundingPayment(pos, rate, price)
		if total := f.totalPnL(pos, price); total > f.peakPnL[symbol] {
			f.peakPnL[symbol] = total
		}
		if should, reason := f.shouldClosePosition(pos, rate, price); should {
			f.closePosition(pos, price, reason, res)
		}
	} else if f.analyzeFundingOpportunity(rate) && price > 0 &&
		len(f.positions) < f.params.MaxConcurrentPositions {
		f.openPosition(symbol, rate, price, res)
	}
	res.Positions = f.snapshotPositions()
	return res, nil
}

// analyzeFundingOpportunity 判断当前费率是否值得建仓
func (f *FundingArb) analyzeFundingOpportunity(rate float64) bool {
	abs := math.Abs(rate)
	if abs < f.params.MinFundingRate {
		return false
	}
	apy := abs * float64(f.params.FundingPeriodsPerDay) * 365 * 100
	return apy >= f.params.MinAnnualizedAPY
}

// openPosition 在资金费的收取方向建仓：
// 正费率多头付费给空头，因此做空；负费率反之做多。
func (f *FundingArb) openPosition(symbol string, rate, price float64, res *TickResult) {
	dir := models.Short
	if rate < 0 {
		dir = models.Long
	}
	notional := f.cfg.TotalCapital * f.params.PositionSizePercent / 100 * float64(f.cfg.Leverage)
	pos := &models.Position{
		ID:               fmt.Sprintf("%s-%s-p%d", f.cfg.ID, symbol, f.totalTrades+1),
		Symbol:           symbol,
		Direction:        dir,
		EntryPrice:       price,
		Size:             notional / price,
		OpenTime:         f.nowFn(),
		EntryFundingRate: rate,
	}
	f.positions[symbol] = pos
	f.peakPnL[symbol] = 0
	res.OpenedPosition = pos
	f.log.Infof("建仓 %s %s @%.4f 入场费率 %.4f%%", symbol, dir, price, rate*100)
}

// recordFundingPayment 按当前方向与费率符号结算一期资金费。
// 费率恰好为零时不计任何资金费。
func (f *FundingArb) recordFundingPayment(pos *models.Position, rate, price float64) {
	if price <= 0 {
		price = pos.EntryPrice
	}
	notional := pos.Size * price
	switch {
	case rate > 0 && pos.Direction == models.Short:
		pos.AccumulatedFunding += rate * notional
	case rate < 0 && pos.Direction == models.Long:
		pos.AccumulatedFunding += -rate * notional
	case rate > 0 && pos.Direction == models.Long:
		pos.AccumulatedFunding -= rate * notional
	case rate < 0 && pos.Direction == models.Short:
		pos.AccumulatedFunding -= -rate * notional
	}
	pos.PeriodsHeld++
}

// shouldClosePosition 依次检查四个平仓条件：
// 费率方向翻转、费率深度衰减、总盈亏回撤超限、达到持有期后的获利了结。
func (f *FundingArb) shouldClosePosition(pos *models.Position, rate, price float64) (bool, string) {
	if f.params.StopOnDirectionChange && rate*pos.EntryFundingRate < 0 {
		return true, "direction_flip"
	}
	if math.Abs(rate) < rateDecayCloseRatio*math.Abs(pos.EntryFundingRate) {
		return true, "rate_decay"
	}
	total := f.totalPnL(pos, price)
	notional := pos.Size * pos.EntryPrice
	if notional > 0 {
		dd := (f.peakPnL[pos.Symbol] - total) / notional * 100
		if dd > f.params.MaxDrawdownPercent {
			return true, "drawdown"
		}
	}
	if pos.PeriodsHeld >= f.params.MinHoldingPeriods &&
		math.Abs(rate) < rateDecayProfitRatio*math.Abs(pos.EntryFundingRate) &&
		total > 0 {
		return true, "profit_take"
	}
	return false, ""
}

// totalPnL 返回资金费与价格两部分的合计盈亏
func (f *FundingArb) totalPnL(pos *models.Position, price float64) float64 {
	if price <= 0 {
		return pos.AccumulatedFunding
	}
	trading := pos.Size * (price - pos.EntryPrice)
	if pos.Direction == models.Short {
		trading = -trading
	}
	return pos.AccumulatedFunding + trading
}

func (f *FundingArb) closePosition(pos *models.Position, price float64, reason string, res *TickResult) {
	if price <= 0 {
		price = pos.EntryPrice
	}
	pnl := f.totalPnL(pos, price)
	side := models.Sell
	if pos.Direction == models.Short {
		side = models.Buy
	}
	f.realizedPnL += pnl
	f.totalTrades++
	if pnl > 0 {
		f.wins++
	} else {
		f.losses++
	}
	f.tradeSeq++
	res.ClosedTrades = append(res.ClosedTrades, models.TradeRecord{
		ID:         fmt.Sprintf("%s-t%d", f.cfg.ID, f.tradeSeq),
		Symbol:     pos.Symbol,
		Side:       side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Size:       pos.Size,
		PnL:        pnl,
		EntryTime:  pos.OpenTime,
		ExitTime:   f.nowFn(),
		Reason:     reason,
	})
	delete(f.positions, pos.Symbol)
	delete(f.peakPnL, pos.Symbol)
	f.log.Infof("平仓 %s %s @%.4f 原因 %s 合计盈亏 %.4f (含资金费 %.4f)",
		pos.Symbol, pos.Direction, price, reason, pnl, pos.AccumulatedFunding)
}

// snapshotPositions 返回按交易对排序的持仓快照，顺序稳定便于日志与测试
func (f *FundingArb) snapshotPositions() []models.Position {
	if len(f.positions) == 0 {
		return nil
	}
	symbols := make([]string, 0, len(f.positions))
	for s := range f.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	out := make([]models.Position, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, *f.positions[s])
	}
	return out
}

func (f *FundingArb) Stats() models.StrategyStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	unreal := 0.0
	for sym, pos := range f.positions {
		unreal += f.totalPnL(pos, f.prices[sym])
	}
	return models.StrategyStats{
		Running:       f.running,
		TotalTrades:   f.totalTrades,
		Wins:          f.wins,
		Losses:        f.losses,
		RealizedPnL:   f.realizedPnL,
		UnrealizedPnL: unreal,
		OpenPositions: len(f.positions),
	}
}

func (f *FundingArb) Config() models.StrategyConfig { return f.cfg }
