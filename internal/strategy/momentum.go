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

// 五个信号的固定权重，总分上限 8
const (
	weightRSI  = 2.0
	weightBB   = 2.0
	weightADX  = 1.5
	weightEMA  = 1.5
	weightMACD = 1.0

	signalScoreMin   = 4.0 // 单边最低分
	signalDominance  = 1.5 // 必须领先对侧的倍数
	adxTrendStrength = 25.0

	windowMax = 200
)

// Signal 是动量信号生成的输出
type Signal struct {
	Direction  models.Direction
	Confidence float64
	LongScore  float64
	ShortScore float64
}

// Momentum 动量策略：五个独立指标信号加权打分，
// 单边得分达标且明显压制对侧时才开仓，同一时刻最多一个持仓。
type Momentum struct {
	cfg    models.StrategyConfig
	params models.MomentumParams
	log    *zap.SugaredLogger
	nowFn  Clock

	mu          sync.Mutex
	running     bool
	window      []models.Candle
	lastPrice   float64
	position    *models.Position
	realizedPnL float64
	totalTrades int
	wins        int
	losses      int
	tradeSeq    int
}

func NewMomentum(cfg models.StrategyConfig) (*Momentum, error) {
	if cfg.Type != models.StrategyMomentum || cfg.Momentum == nil {
		return nil, fmt.Errorf("配置类型 %s 不是动量策略", cfg.Type)
	}
	return &Momentum{
		cfg:    cfg,
		params: *cfg.Momentum,
		log:    logger.Named("momentum." + cfg.Name),
		nowFn:  time.Now,
	}, nil
}

func (m *Momentum) SetClock(fn Clock) { m.nowFn = fn }

func (m *Momentum) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.log.Warnf("策略已在运行，忽略重复启动")
		return nil
	}
	m.running = true
	m.log.Infof("动量策略启动: %s 止盈 %.2f%% 止损 %.2f%%",
		m.cfg.Symbol, m.params.TakeProfitPercent, m.params.StopLossPercent)
	return nil
}

func (m *Momentum) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	m.log.Infof("动量策略停止: 已实现盈亏 %.4f", m.realizedPnL)
}

// PushCandle 向回看窗口追加一根K线，窗口满后丢弃最旧的
func (m *Momentum) PushCandle(c models.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = append(m.window, c)
	if len(m.window) > windowMax {
		m.window = m.window[len(m.window)-windowMax:]
	}
}

// OnPriceUpdate 无持仓时走信号生成路径，有持仓时走仓位管理路径。
// 指标预热不足的tick直接跳过，不视为错误。
func (m *Momentum) OnPriceUpdate(price float64) (*TickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := &TickResult{}
	if !m.running {
		return res, nil
	}
	m.lastPrice = price

	if m.position != nil {
		m.managePosition(price, res)
		return res, nil
	}

	snap, err := indicator.Compute(m.window)
	if err != nil {
		return res, nil
	}
	sig := GenerateSignal(snap)
	if sig.Direction == models.None {
		return res, nil
	}

	size := m.cfg.TotalCapital * m.params.PositionSizePercent / 100 * float64(m.cfg.Leverage) / price
	pos := &models.Position{
		ID:         fmt.Sprintf("%s-p%d", m.cfg.ID, m.totalTrades+1),
		Symbol:     m.cfg.Symbol,
		Direction:  sig.Direction,
		EntryPrice: price,
		Size:       size,
		OpenTime:   m.nowFn(),
	}
	if sig.Direction == models.Long {
		pos.TakeProfit = price * (1 + m.params.TakeProfitPercent/100)
		pos.StopLoss = price * (1 - m.params.StopLossPercent/100)
		if m.params.TrailingStopPercent > 0 {
			pos.TrailingStop = price * (1 - m.params.TrailingStopPercent/100)
		}
	} else {
		pos.TakeProfit = price * (1 - m.params.TakeProfitPercent/100)
		pos.StopLoss = price * (1 + m.params.StopLossPercent/100)
		if m.params.TrailingStopPercent > 0 {
			pos.TrailingStop = price * (1 + m.params.TrailingStopPercent/100)
		}
	}
	m.position = pos
	res.OpenedPosition = pos
	m.log.Infof("开仓 %s @%.4f 置信度 %.2f (多 %.1f / 空 %.1f)",
		pos.Direction, price, sig.Confidence, sig.LongScore, sig.ShortScore)
	return res, nil
}

// managePosition 先检查止盈止损，都未触发时再收紧追踪止损。
// 追踪止损只会向价格方向单调收紧，永不放松。
func (m *Momentum) managePosition(price float64, res *TickResult) {
	pos := m.position
	if pos.Direction == models.Long {
		switch {
		case price >= pos.TakeProfit:
			m.closePosition(price, "take_profit", res)
			return
		case price <= pos.StopLoss:
			m.closePosition(price, "stop_loss", res)
			return
		case pos.TrailingStop > 0 && price <= pos.TrailingStop:
			m.closePosition(price, "trailing_stop", res)
			return
		}
		if m.params.TrailingStopPercent > 0 {
			if nt := price * (1 - m.params.TrailingStopPercent/100); nt > pos.TrailingStop {
				pos.TrailingStop = nt
			}
		}
		return
	}
	switch {
	case price <= pos.TakeProfit:
		m.closePosition(price, "take_profit", res)
		return
	case price >= pos.StopLoss:
		m.closePosition(price, "stop_loss", res)
		return
	case pos.TrailingStop > 0 && price >= pos.TrailingStop:
		m.closePosition(price, "trailing_stop", res)
		return
	}
	if m.params.TrailingStopPercent > 0 {
		if nt := price * (1 + m.params.TrailingStopPercent/100); nt < pos.TrailingStop {
			pos.TrailingStop = nt
		}
	}
}

func (m *Momentum) closePosition(price float64, reason string, res *TickResult) {
	pos := m.position
	pnl := pos.Size * (price - pos.EntryPrice)
	side := models.Sell
	if pos.Direction == models.Short {
		pnl = pos.Size * (pos.EntryPrice - price)
		side = models.Buy
	}
	m.realizedPnL += pnl
	m.totalTrades++
	if pnl > 0 {
		m.wins++
	} else {
		m.losses++
	}
	m.tradeSeq++
	res.ClosedTrades = append(res.ClosedTrades, models.TradeRecord{
		ID:         fmt.Sprintf("%s-t%d", m.cfg.ID, m.tradeSeq),
		Symbol:     pos.Symbol,
		Side:       side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Size:       pos.Size,
		PnL:        pnl,
		EntryTime:  pos.OpenTime,
		ExitTime:   m.nowFn(),
		Reason:     reason,
	})
	m.log.Infof("平仓 %s @%.4f 原因 %s 盈亏 %.4f", pos.Direction, price, reason, pnl)
	m.position = nil
}

// GenerateSignal 汇总五个信号的加权得分并判定方向。
// 单边得分必须达到下限且不低于对侧的 1.5 倍，否则不给方向。
func GenerateSignal(s *indicator.Snapshot) Signal {
	var long, short float64

	if s.RSI < 30 {
		long += weightRSI
	} else if s.RSI > 70 {
		short += weightRSI
	}

	if s.Close > s.BBUpper {
		long += weightBB
	} else if s.Close < s.BBLower {
		short += weightBB
	}

	if s.ADX > adxTrendStrength {
		if s.PlusDI > s.MinusDI {
			long += weightADX
		} else if s.MinusDI > s.PlusDI {
			short += weightADX
		}
	}

	if s.EMAFast > s.EMAMid && s.EMAMid > s.EMASlow {
		long += weightEMA
	} else if s.EMAFast < s.EMAMid && s.EMAMid < s.EMASlow {
		short += weightEMA
	}

	if s.MACDCrossUp() {
		long += weightMACD
	} else if s.MACDCrossDown() {
		short += weightMACD
	}

	sig := Signal{Direction: models.None, LongScore: long, ShortScore: short}
	if long >= signalScoreMin && long >= signalDominance*short {
		sig.Direction = models.Long
		sig.Confidence = min(1, long/8)
	} else if short >= signalScoreMin && short >= signalDominance*long {
		sig.Direction = models.Short
		sig.Confidence = min(1, short/8)
	}
	return sig
}

func (m *Momentum) Stats() models.StrategyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := 0
	unreal := 0.0
	if m.position != nil {
		open = 1
		if m.lastPrice > 0 {
			unreal = m.position.Size * (m.lastPrice - m.position.EntryPrice)
			if m.position.Direction == models.Short {
				unreal = -unreal
			}
		}
	}
	return models.StrategyStats{
		Running:       m.running,
		TotalTrades:   m.totalTrades,
		Wins:          m.wins,
		Losses:        m.losses,
		RealizedPnL:   m.realizedPnL,
		UnrealizedPnL: unreal,
		OpenPositions: open,
	}
}

func (m *Momentum) Config() models.StrategyConfig { return m.cfg }
