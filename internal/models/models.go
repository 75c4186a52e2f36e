package models

import (
	"fmt"
	"time"
)

// StrategyType 标识策略种类
type StrategyType string

const (
	StrategyGridBot    StrategyType = "grid"
	StrategyMomentum   StrategyType = "momentum"
	StrategyScalping   StrategyType = "scalping"
	StrategyFundingArb StrategyType = "funding_arb"
)

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Direction 定义了持仓方向
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	None  Direction = "NONE"
)

// Candle 代表一根K线
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Validate 检查K线数据的基本一致性
func (c *Candle) Validate() error {
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("K线非法: high %.8f 低于 open/close", c.High)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("K线非法: low %.8f 高于 open/close", c.Low)
	}
	return nil
}

// Config 结构体定义了应用的所有配置参数
type Config struct {
	DBPath             string    `json:"db_path"`              // badger 数据库路径
	LiveAPIURL         string    `json:"live_api_url"`         // 币安 REST API 地址
	LiveWSURL          string    `json:"live_ws_url"`          // 币安 WebSocket 地址
	ThrottleIntervalMs int       `json:"throttle_interval_ms"` // 行情分发的最小间隔（毫秒），默认 1000
	TakerFeeRate       float64   `json:"taker_fee_rate"`       // 回测吃单手续费率
	MakerFeeRate       float64   `json:"maker_fee_rate"`       // 回测挂单手续费率
	BacktestDays       int       `json:"backtest_days"`        // 优化回测天数
	LogConfig          LogConfig `json:"log"`                  // 日志配置

	Strategies []StrategyConfig `json:"strategies"` // 启动时加载的策略列表
	Agents     []AgentConfig    `json:"agents"`     // 启动时加载的优化代理列表
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// StrategyConfig 是带标签的策略参数集合，按 Type 选用对应的变体字段。
// 构造时必须通过 Validate，之后在实例生命周期内不可变。
type StrategyConfig struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         StrategyType `json:"type"`
	Symbol       string       `json:"symbol"`
	Symbols      []string     `json:"symbols,omitempty"` // FundingArb 的多交易对
	Leverage     int          `json:"leverage"`
	TotalCapital float64      `json:"total_capital"`
	Enabled      bool         `json:"enabled"`

	Grid       *GridParams       `json:"grid,omitempty"`
	Momentum   *MomentumParams   `json:"momentum,omitempty"`
	Scalping   *ScalpingParams   `json:"scalping,omitempty"`
	FundingArb *FundingArbParams `json:"funding_arb,omitempty"`
}

// GridParams 网格策略参数
type GridParams struct {
	UpperPrice      float64 `json:"upper_price"`
	LowerPrice      float64 `json:"lower_price"`
	GridCount       int     `json:"grid_count"`        // 网格数量，区间 [5, 50]
	StopLossPercent float64 `json:"stop_loss_percent"` // 总资金止损比例，区间 [1, 20]
}

// MomentumParams 动量策略参数
type MomentumParams struct {
	TakeProfitPercent   float64 `json:"take_profit_percent"`
	StopLossPercent     float64 `json:"stop_loss_percent"`
	TrailingStopPercent float64 `json:"trailing_stop_percent,omitempty"` // 0 表示关闭追踪止损
	PositionSizePercent float64 `json:"position_size_percent"`           // 单次开仓占总资金比例
}

// ScalpingParams 剥头皮策略参数
type ScalpingParams struct {
	RSILow              float64 `json:"rsi_low"`
	RSIHigh             float64 `json:"rsi_high"`
	TakeProfitPercent   float64 `json:"take_profit_percent"` // 通常小于 1%
	StopLossPercent     float64 `json:"stop_loss_percent"`
	MaxDailyTrades      int     `json:"max_daily_trades"`
	MaxDailyLoss        float64 `json:"max_daily_loss"` // USDT
	MinVolume24h        float64 `json:"min_volume_24h"`
	MaxSpreadPercent    float64 `json:"max_spread_percent"`
	UseStochastic       bool    `json:"use_stochastic"`
	PositionSizePercent float64 `json:"position_size_percent"`
}

// FundingArbParams 资金费率套利参数
type FundingArbParams struct {
	MinFundingRate         float64 `json:"min_funding_rate"`         // 开仓的最小单期费率（绝对值）
	MinAnnualizedAPY       float64 `json:"min_annualized_apy"`       // 开仓的最小年化收益（百分比）
	FundingPeriodsPerDay   int     `json:"funding_periods_per_day"`  // 每天结算次数，币安为 3
	MaxConcurrentPositions int     `json:"max_concurrent_positions"` // 最大并发持仓数（按交易对）
	StopOnDirectionChange  bool    `json:"stop_on_direction_change"` // 费率方向翻转时是否平仓
	MaxDrawdownPercent     float64 `json:"max_drawdown_percent"`     // (资金费+交易) 总盈亏的最大回撤
	MinHoldingPeriods      int     `json:"min_holding_periods"`      // 获利了结前的最短持有期数
	PositionSizePercent    float64 `json:"position_size_percent"`
}

// Validate 检查策略配置是否在各变体的合法区间内。
// 校验失败的配置不允许实例化策略。
func (c *StrategyConfig) Validate() error {
	if c.Leverage < 1 || c.Leverage > 10 {
		return fmt.Errorf("杠杆 %d 超出范围 [1, 10]", c.Leverage)
	}
	if c.TotalCapital <= 0 {
		return fmt.Errorf("总资金必须为正数, 实际为 %.2f", c.TotalCapital)
	}
	switch c.Type {
	case StrategyGridBot:
		return c.validateGrid()
	case StrategyMomentum:
		return c.validateMomentum()
	case StrategyScalping:
		return c.validateScalping()
	case StrategyFundingArb:
		return c.validateFundingArb()
	default:
		return fmt.Errorf("未知的策略类型: %s", c.Type)
	}
}

func (c *StrategyConfig) validateGrid() error {
	g := c.Grid
	if g == nil {
		return fmt.Errorf("网格策略缺少 grid 参数")
	}
	if g.UpperPrice <= g.LowerPrice {
		return fmt.Errorf("上边界 %.4f 必须大于下边界 %.4f", g.UpperPrice, g.LowerPrice)
	}
	if g.GridCount < 5 || g.GridCount > 50 {
		return fmt.Errorf("网格数量 %d 超出范围 [5, 50]", g.GridCount)
	}
	if g.StopLossPercent < 1 || g.StopLossPercent > 20 {
		return fmt.Errorf("止损比例 %.2f 超出范围 [1, 20]", g.StopLossPercent)
	}
	return nil
}

func (c *StrategyConfig) validateMomentum() error {
	m := c.Momentum
	if m == nil {
		return fmt.Errorf("动量策略缺少 momentum 参数")
	}
	if m.TakeProfitPercent <= 0 || m.TakeProfitPercent > 50 {
		return fmt.Errorf("止盈比例 %.2f 超出范围 (0, 50]", m.TakeProfitPercent)
	}
	if m.StopLossPercent <= 0 || m.StopLossPercent > 20 {
		return fmt.Errorf("止损比例 %.2f 超出范围 (0, 20]", m.StopLossPercent)
	}
	if m.TrailingStopPercent < 0 || m.TrailingStopPercent > 20 {
		return fmt.Errorf("追踪止损比例 %.2f 超出范围 [0, 20]", m.TrailingStopPercent)
	}
	if m.PositionSizePercent <= 0 || m.PositionSizePercent > 100 {
		return fmt.Errorf("仓位比例 %.2f 超出范围 (0, 100]", m.PositionSizePercent)
	}
	return nil
}

func (c *StrategyConfig) validateScalping() error {
	s := c.Scalping
	if s == nil {
		return fmt.Errorf("剥头皮策略缺少 scalping 参数")
	}
	if s.RSILow <= 0 || s.RSIHigh >= 100 || s.RSILow >= s.RSIHigh {
		return fmt.Errorf("RSI 阈值非法: low=%.1f high=%.1f", s.RSILow, s.RSIHigh)
	}
	if s.TakeProfitPercent <= 0 || s.TakeProfitPercent > 5 {
		return fmt.Errorf("止盈比例 %.2f 超出范围 (0, 5]", s.TakeProfitPercent)
	}
	if s.StopLossPercent <= 0 || s.StopLossPercent > 5 {
		return fmt.Errorf("止损比例 %.2f 超出范围 (0, 5]", s.StopLossPercent)
	}
	if s.MaxDailyTrades <= 0 {
		return fmt.Errorf("每日最大交易次数必须为正数")
	}
	if s.MaxDailyLoss <= 0 {
		return fmt.Errorf("每日最大亏损必须为正数")
	}
	if s.PositionSizePercent <= 0 || s.PositionSizePercent > 100 {
		return fmt.Errorf("仓位比例 %.2f 超出范围 (0, 100]", s.PositionSizePercent)
	}
	return nil
}

func (c *StrategyConfig) validateFundingArb() error {
	f := c.FundingArb
	if f == nil {
		return fmt.Errorf("资金费率套利策略缺少 funding_arb 参数")
	}
	if len(c.Symbols) == 0 && c.Symbol == "" {
		return fmt.Errorf("资金费率套利策略至少需要一个交易对")
	}
	if f.MinFundingRate <= 0 {
		return fmt.Errorf("最小资金费率必须为正数")
	}
	if f.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("最大并发持仓数必须为正数")
	}
	if f.FundingPeriodsPerDay <= 0 {
		return fmt.Errorf("每日结算次数必须为正数")
	}
	if f.MaxDrawdownPercent <= 0 || f.MaxDrawdownPercent > 100 {
		return fmt.Errorf("最大回撤比例 %.2f 超出范围 (0, 100]", f.MaxDrawdownPercent)
	}
	return nil
}

// GridOrderStatus 网格挂单状态
type GridOrderStatus string

const (
	GridPending   GridOrderStatus = "pending"
	GridFilled    GridOrderStatus = "filled"
	GridCancelled GridOrderStatus = "cancelled"
)

// GridLevel 代表网格中的一个价格档位
type GridLevel struct {
	Price      float64         `json:"price"`
	Size       float64         `json:"size"`
	Side       Side            `json:"side"`
	Status     GridOrderStatus `json:"status"`
	EntryPrice float64         `json:"entry_price,omitempty"` // 仅卖单使用，记录配对买入价
	PnL        float64         `json:"pnl,omitempty"`         // 成交后标注的已实现盈亏
}

// Position 代表一笔方向性持仓
type Position struct {
	ID                 string    `json:"id"`
	Symbol             string    `json:"symbol"`
	Direction          Direction `json:"direction"`
	EntryPrice         float64   `json:"entry_price"`
	Size               float64   `json:"size"`
	StopLoss           float64   `json:"stop_loss,omitempty"`
	TakeProfit         float64   `json:"take_profit,omitempty"`
	TrailingStop       float64   `json:"trailing_stop,omitempty"`
	OpenTime           time.Time `json:"open_time"`
	EntryFundingRate   float64   `json:"entry_funding_rate,omitempty"`  // FundingArb: 开仓时的费率
	AccumulatedFunding float64   `json:"accumulated_funding,omitempty"` // FundingArb: 累计资金费
	PeriodsHeld        int       `json:"periods_held,omitempty"`        // FundingArb: 已经历的结算期数
}

// TradeRecord 记录一笔完成的交易
type TradeRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	PnL        float64   `json:"pnl"`
	Fee        float64   `json:"fee"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Reason     string    `json:"reason"` // signal / take_profit / stop_loss / grid_fill ...
}

// BacktestResult 是一次模拟运行的全部产出，生成后不可变
type BacktestResult struct {
	StrategyType       StrategyType  `json:"strategy_type"`
	Symbol             string        `json:"symbol"`
	StartBalance       float64       `json:"start_balance"`
	EndBalance         float64       `json:"end_balance"`
	EquityCurve        []float64     `json:"equity_curve"`
	Trades             []TradeRecord `json:"trades"`
	TotalTrades        int           `json:"total_trades"`
	Wins               int           `json:"wins"`
	Losses             int           `json:"losses"`
	WinRate            float64       `json:"win_rate"` // [0, 1]
	ProfitFactor       float64       `json:"profit_factor"`
	SharpeRatio        float64       `json:"sharpe_ratio"`
	MaxDrawdownPercent float64       `json:"max_drawdown_percent"`
	TotalFees          float64       `json:"total_fees"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
}

// StrategyStats 是策略实例对外暴露的运行统计快照
type StrategyStats struct {
	Running           bool    `json:"running"`
	TotalTrades       int     `json:"total_trades"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	RealizedPnL       float64 `json:"realized_pnl"`
	UnrealizedPnL     float64 `json:"unrealized_pnl"`
	OpenPositions     int     `json:"open_positions"`
	StopLossTriggered bool    `json:"stop_loss_triggered"`
}

// ExecutionRequest 是发给订单执行器的请求
type ExecutionRequest struct {
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Size   float64 `json:"size"`
	Price  float64 `json:"price,omitempty"` // 0 表示按当前价成交
	Reason string  `json:"reason"`
}

// ExecutionResult 是订单执行器的统一返回结构
type ExecutionResult struct {
	Success     bool    `json:"success"`
	OrderID     string  `json:"order_id,omitempty"`
	FilledPrice float64 `json:"filled_price,omitempty"`
	FilledSize  float64 `json:"filled_size,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// AlertLevel 通知级别
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert 是发往通知通道的消息，尽力送达，失败不影响核心状态
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// ParamChange 描述顾问建议中单个参数的变更
type ParamChange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Recommendation 是外部顾问服务产出的参数调整建议
type Recommendation struct {
	Type       string                 `json:"type"`
	Changes    map[string]ParamChange `json:"changes"`
	Confidence float64                `json:"confidence"`
	AutoApply  bool                   `json:"auto_apply"`
}
