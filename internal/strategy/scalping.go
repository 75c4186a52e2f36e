package strategy

import (
	"fmt"
	"sync"
	"time"

	"quant-agent-go/internal/indicator"
	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"go.uber.org/zap"
)

// Scalping 剥头皮策略：RSI 超买超卖触发的短线进出，
// 带有按 UTC 自然日重置的交易次数与亏损额度限制。
type Scalping struct {
	cfg    models.StrategyConfig
	params models.ScalpingParams
	log    *zap.SugaredLogger
	nowFn  Clock

	mu        sync.Mutex
	running   bool
	window    []models.Candle
	lastPrice float64
	position  *models.Position

	// 当日风控状态，UTC 零点重置
	day         string
	dailyTrades int
	dailyPnL    float64

	spreadPercent float64 // 由调用方注入的买卖价差，回测中为 0

	realizedPnL float64
	totalTrades int
	wins        int
	losses      int
	tradeSeq    int
}

func NewScalping(cfg models.StrategyConfig) (*Scalping, error) {
	if cfg.Type != models.StrategyScalping || cfg.Scalping == nil {
		return nil, fmt.Errorf("配置类型 %s 不是剥头皮策略", cfg.Type)
	}
	return &Scalping{
		cfg:    cfg,
		params: *cfg.Scalping,
		log:    logger.Named("scalping." + cfg.Name),
		nowFn:  time.Now,
	}, nil
}

func (s *Scalping) SetClock(fn Clock) { s.nowFn = fn }

// SetSpread 注入当前买卖价差百分比，用于入场前的价差过滤
func (s *Scalping) SetSpread(pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spreadPercent = pct
}

func (s *Scalping) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Warnf("策略已在运行，忽略重复启动")
		return nil
	}
	s.running = true
	s.log.Infof("剥头皮策略启动: %s RSI [%.0f, %.0f] 每日上限 %d 笔",
		s.cfg.Symbol, s.params.RSILow, s.params.RSIHigh, s.params.MaxDailyTrades)
	return nil
}

func (s *Scalping) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.log.Infof("剥头皮策略停止: 已实现盈亏 %.4f", s.realizedPnL)
}

func (s *Scalping) PushCandle(c models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = append(s.window, c)
	if len(s.window) > windowMax {
		s.window = s.window[len(s.window)-windowMax:]
	}
}

// rollDay 检查是否跨过 UTC 零点，跨日则重置当日计数。调用方必须持有锁。
func (s *Scalping) rollDay() {
	d := s.nowFn().UTC().Format("2006-01-02")
	if d != s.day {
		if s.day != "" {
			s.log.Infof("跨日重置: 昨日 %d 笔, 盈亏 %.4f", s.dailyTrades, s.dailyPnL)
		}
		s.day = d
		s.dailyTrades = 0
		s.dailyPnL = 0
	}
}

// volume24h 统计窗口内最近24小时的成交量。调用方必须持有锁。
func (s *Scalping) volume24h() float64 {
	cutoff := s.nowFn().Add(-24 * time.Hour)
	total := 0.0
	for i := len(s.window) - 1; i >= 0; i-- {
		if s.window[i].OpenTime.Before(cutoff) {
			break
		}
		total += s.window[i].Volume
	}
	return total
}

// entryBlocked 返回入场被哪条风控规则拦截，空串表示放行
func (s *Scalping) entryBlocked() string {
	if s.dailyTrades >= s.params.MaxDailyTrades {
		return "达到每日交易次数上限"
	}
	if s.dailyPnL <= -s.params.MaxDailyLoss {
		return "达到每日最大亏损"
	}
	if s.params.MinVolume24h > 0 && s.volume24h() < s.params.MinVolume24h {
		return "24小时成交量不足"
	}
	if s.params.MaxSpreadPercent > 0 && s.spreadPercent > s.params.MaxSpreadPercent {
		return "买卖价差过大"
	}
	return ""
}

func (s *Scalping) OnPriceUpdate(price float64) (*TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &TickResult{}
	if !s.running {
		return res, nil
	}
	s.lastPrice = price
	s.rollDay()

	if s.position != nil {
		s.managePosition(price, res)
		return res, nil
	}

	if reason := s.entryBlocked(); reason != "" {
		s.log.Debugf("入场被拦截: %s", reason)
		return res, nil
	}

	snap, err := indicator.Compute(s.window)
	if err != nil {
		return res, nil
	}

	var dir models.Direction = models.None
	if snap.RSI < s.params.RSILow {
		if !s.params.UseStochastic || snap.StochCrossUp() {
			dir = models.Long
		}
	} else if snap.RSI > s.params.RSIHigh {
		if !s.params.UseStochastic || snap.StochCrossDown() {
			dir = models.Short
		}
	}
	if dir == models.None {
		return res, nil
	}

	size := s.cfg.TotalCapital * s.params.PositionSizePercent / 100 * float64(s.cfg.Leverage) / price
	pos := &models.Position{
		ID:         fmt.Sprintf("%s-p%d", s.cfg.ID, s.totalTrades+1),
		Symbol:     s.cfg.Symbol,
		Direction:  dir,
		EntryPrice: price,
		Size:       size,
		OpenTime:   s.nowFn(),
	}
	if dir == models.Long {
		pos.TakeProfit = price * (1 + s.params.TakeProfitPercent/100)
		pos.StopLoss = price * (1 - s.params.StopLossPercent/100)
	} else {
		pos.TakeProfit = price * (1 - s.params.TakeProfitPercent/100)
		pos.StopLoss = price * (1 + s.params.StopLossPercent/100)
	}
	s.position = pos
	s.dailyTrades++
	res.OpenedPosition = pos
	s.log.Infof("开仓 %s @%.4f RSI %.1f (今日第 %d 笔)", dir, price, snap.RSI, s.dailyTrades)
	return res, nil
}

func (s *Scalping) managePosition(price float64, res *TickResult) {
	pos := s.position
	if pos.Direction == models.Long {
		switch {
		case price >= pos.TakeProfit:
			s.closePosition(price, "take_profit", res)
		case price <= pos.StopLoss:
			s.closePosition(price, "stop_loss", res)
		}
		return
	}
	switch {
	case price <= pos.TakeProfit:
		s.closePosition(price, "take_profit", res)
	case price >= pos.StopLoss:
		s.closePosition(price, "stop_loss", res)
	}
}

func (s *Scalping) closePosition(price float64, reason string, res *TickResult) {
	pos := s.position
	pnl := pos.Size * (price - pos.EntryPrice)
	side := models.Sell
	if pos.Direction == models.Short {
		pnl = pos.Size * (pos.EntryPrice - price)
		side = models.Buy
	}
	s.realizedPnL += pnl
	s.dailyPnL += pnl
	s.totalTrades++
	if pnl > 0 {
		s.wins++
	} else {
		s.losses++
	}
	s.tradeSeq++
	res.ClosedTrades = append(res.ClosedTrades, models.TradeRecord{
		ID:         fmt.Sprintf("%s-t%d", s.cfg.ID, s.tradeSeq),
		Symbol:     pos.Symbol,
		Side:       side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Size:       pos.Size,
		PnL:        pnl,
		EntryTime:  pos.OpenTime,
		ExitTime:   s.nowFn(),
		Reason:     reason,
	})
	s.log.Infof("平仓 %s @%.4f 原因 %s 盈亏 %.4f (今日盈亏 %.4f)",
		pos.Direction, price, reason, pnl, s.dailyPnL)
	s.position = nil
}

func (s *Scalping) Stats() models.StrategyStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := 0
	unreal := 0.0
	if s.position != nil {
		open = 1
		if s.lastPrice > 0 {
			unreal = s.position.Size * (s.lastPrice - s.position.EntryPrice)
			if s.position.Direction == models.Short {
				unreal = -unreal
			}
		}
	}
	return models.StrategyStats{
		Running:       s.running,
		TotalTrades:   s.totalTrades,
		Wins:          s.wins,
		Losses:        s.losses,
		RealizedPnL:   s.realizedPnL,
		UnrealizedPnL: unreal,
		OpenPositions: open,
	}
}

func (s *Scalping) Config() models.StrategyConfig { return s.cfg }
