package strategy

import (
	"fmt"
	"time"

	"quant-agent-go/internal/models"
)

// Clock 返回策略视角的当前时间。
// 实盘默认使用 time.Now，回测由模拟器注入K线时间以保证结果可复现。
type Clock func() time.Time

// TickResult 是一次价格更新产生的全部输出。
// 调度器与回测模拟器根据策略类型按需读取其中的字段。
type TickResult struct {
	FilledOrders      []models.GridLevel   // 网格：本tick成交的档位
	OpenedPosition    *models.Position     // 方向性策略：本tick新开的仓位
	ClosedTrades      []models.TradeRecord // 本tick平仓产生的交易记录
	StopLossTriggered bool                 // 网格：触发总资金止损
	Positions         []models.Position    // 资金费率套利：当前持仓快照
}

// Empty 判断本tick是否没有产生任何动作
func (r *TickResult) Empty() bool {
	return len(r.FilledOrders) == 0 && r.OpenedPosition == nil &&
		len(r.ClosedTrades) == 0 && !r.StopLossTriggered
}

// Strategy 是四种策略引擎共享的能力契约。
// 每个实例的 OnPriceUpdate 不允许被并发调用，由调用方保证串行。
type Strategy interface {
	Start() error
	Stop()
	OnPriceUpdate(price float64) (*TickResult, error)
	Stats() models.StrategyStats
	Config() models.StrategyConfig
}

// CandleConsumer 由依赖指标的策略实现。
// 调用方在 OnPriceUpdate 之前推送K线，策略自己维护回看窗口。
type CandleConsumer interface {
	PushCandle(c models.Candle)
}

// New 按配置类型构造对应的策略引擎。
// 配置校验失败时直接返回错误，策略不会被实例化。
func New(cfg models.StrategyConfig) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case models.StrategyGridBot:
		return NewGridBot(cfg)
	case models.StrategyMomentum:
		return NewMomentum(cfg)
	case models.StrategyScalping:
		return NewScalping(cfg)
	case models.StrategyFundingArb:
		return NewFundingArb(cfg)
	default:
		return nil, fmt.Errorf("未知的策略类型: %s", cfg.Type)
	}
}
