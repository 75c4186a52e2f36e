package backtest

import (
	"fmt"
	"time"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"
	"quant-agent-go/internal/strategy"

	"go.uber.org/zap"
)

// fundingRateCap 合成资金费率的上下限，对齐交易所单期费率上限
const fundingRateCap = 0.0075

// clockSetter 由支持注入时钟的策略实现，回测用K线时间驱动策略内时钟
type clockSetter interface {
	SetClock(strategy.Clock)
}

// Simulator 回测模拟器：把历史K线按时间顺序喂给策略引擎，
// 聚合成交记录并产出性能报告。同一输入两次运行的结果完全一致。
type Simulator struct {
	takerFeeRate float64
	log          *zap.SugaredLogger
}

func NewSimulator(takerFeeRate float64) *Simulator {
	return &Simulator{
		takerFeeRate: takerFeeRate,
		log:          logger.Named("backtest"),
	}
}

// Run 用给定配置回放一段K线并返回结果。
// 指标预热不足的tick由策略内部跳过，不会让整个回测失败。
func (s *Simulator) Run(cfg models.StrategyConfig, candles []models.Candle) (*models.BacktestResult, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("回测K线为空")
	}

	strat, err := strategy.New(cfg)
	if err != nil {
		return nil, err
	}

	// 策略内时钟跟随当前K线时间，保证交易时间戳可复现
	current := candles[0].OpenTime
	if cs, ok := strat.(clockSetter); ok {
		cs.SetClock(func() time.Time { return current })
	}
	consumer, _ := strat.(strategy.CandleConsumer)
	arb, _ := strat.(*strategy.FundingArb)

	if err := strat.Start(); err != nil {
		return nil, err
	}
	defer strat.Stop()

	result := &models.BacktestResult{
		StrategyType: cfg.Type,
		Symbol:       cfg.Symbol,
		StartBalance: cfg.TotalCapital,
		StartTime:    candles[0].OpenTime,
		EndTime:      candles[len(candles)-1].OpenTime,
	}

	balance := cfg.TotalCapital
	equityTimes := make([]time.Time, 0, len(candles))
	var nextFunding time.Time
	var fundingInterval time.Duration
	if arb != nil {
		fundingInterval = 24 * time.Hour / time.Duration(cfg.FundingArb.FundingPeriodsPerDay)
		nextFunding = candles[0].OpenTime.Add(fundingInterval)
	}

	for i, c := range candles {
		current = c.OpenTime
		if consumer != nil {
			consumer.PushCandle(c)
		}

		res, err := strat.OnPriceUpdate(c.Close)
		if err != nil {
			return nil, fmt.Errorf("第 %d 根K线处理失败: %w", i, err)
		}
		s.settleTrades(res, result, &balance)

		// 资金费率套利在结算间隔边界上注入合成费率
		if arb != nil && !c.OpenTime.Before(nextFunding) {
			rate := syntheticFundingRate(candles, i)
			fres, err := arb.OnFundingRate(cfg.Symbol, rate)
			if err != nil {
				return nil, err
			}
			s.settleTrades(fres, result, &balance)
			nextFunding = nextFunding.Add(fundingInterval)
		}

		equity := balance + strat.Stats().UnrealizedPnL
		result.EquityCurve = append(result.EquityCurve, equity)
		equityTimes = append(equityTimes, c.OpenTime)
	}

	result.EndBalance = balance
	result.TotalTrades = len(result.Trades)
	for _, t := range result.Trades {
		if t.PnL > 0 {
			result.Wins++
		} else {
			result.Losses++
		}
	}
	if result.TotalTrades > 0 {
		result.WinRate = float64(result.Wins) / float64(result.TotalTrades)
	}
	result.ProfitFactor = profitFactor(result.Trades)
	result.SharpeRatio = sharpeRatio(equityTimes, result.EquityCurve)
	result.MaxDrawdownPercent = maxDrawdownPercent(result.EquityCurve)

	s.log.Infof("回测完成: %s %s 交易 %d 笔 胜率 %.1f%% 终值 %.2f 最大回撤 %.2f%%",
		cfg.Type, cfg.Symbol, result.TotalTrades, result.WinRate*100,
		result.EndBalance, result.MaxDrawdownPercent)
	return result, nil
}

// settleTrades 给本tick的平仓交易计提手续费并入账
func (s *Simulator) settleTrades(res *strategy.TickResult, result *models.BacktestResult, balance *float64) {
	for _, t := range res.ClosedTrades {
		fee := s.takerFeeRate * (t.EntryPrice + t.ExitPrice) * t.Size
		t.Fee = fee
		t.PnL -= fee
		result.TotalFees += fee
		*balance += t.PnL
		result.Trades = append(result.Trades, t)
	}
}

// syntheticFundingRate 从近期价格漂移推出确定性的合成资金费率。
// 溢价方向决定费率符号，幅度压缩后截断在交易所单期上限内。
func syntheticFundingRate(candles []models.Candle, i int) float64 {
	const lookback = 20
	start := i - lookback
	if start < 0 {
		start = 0
	}
	if i <= start {
		return 0
	}
	sum := 0.0
	for j := start; j < i; j++ {
		sum += candles[j].Close
	}
	sma := sum / float64(i-start)
	if sma == 0 {
		return 0
	}
	rate := (candles[i].Close - sma) / sma / 8
	if rate > fundingRateCap {
		rate = fundingRateCap
	}
	if rate < -fundingRateCap {
		rate = -fundingRateCap
	}
	return rate
}
