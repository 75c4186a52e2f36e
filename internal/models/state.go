package models

import "time"

// AgentStatus 定义了优化代理生命周期中的各个状态
type AgentStatus string

const (
	AgentIdle         AgentStatus = "idle"
	AgentOptimizing   AgentStatus = "optimizing"
	AgentPaperTrading AgentStatus = "paper_trading"
	AgentLive         AgentStatus = "live"
	AgentPaused       AgentStatus = "paused"
)

// ParamRange 描述单个可调参数的搜索空间
type ParamRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// AgentConfig 定义了一个优化代理：被包装的策略配置、验收阈值与搜索空间
type AgentConfig struct {
	Name               string                `json:"name"`
	Strategy           StrategyConfig        `json:"strategy"`
	OptimizationRounds int                   `json:"optimization_rounds"`
	BacktestDays       int                   `json:"backtest_days"`
	ParamRanges        map[string]ParamRange `json:"param_ranges"`

	// 验收阈值，全部满足才允许晋级
	MinWinRate         float64 `json:"min_win_rate"`       // [0, 1]
	MinProfitFactor    float64 `json:"min_profit_factor"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	MinSharpeRatio     float64 `json:"min_sharpe_ratio"`

	PaperTradingFirst bool `json:"paper_trading_first"` // 晋级前是否先做短窗口确认
	AutoEnableLive    bool `json:"auto_enable_live"`    // 通过后自动启用实盘，否则等待人工批准
}

// OptimizationRound 记录一轮参数搜索的结果
type OptimizationRound struct {
	Round        int                `json:"round"`
	Params       map[string]float64 `json:"params"`
	Score        float64            `json:"score"`
	WinRate      float64            `json:"win_rate"`
	ProfitFactor float64            `json:"profit_factor"`
	SharpeRatio  float64            `json:"sharpe_ratio"`
	Drawdown     float64            `json:"drawdown"`
}

// AgentState represents the persisted lifecycle/progress of one optimization
// agent. It is mutated only by the agent's own control loop and by explicit
// user actions (stop/approve/pause/resume).
type AgentState struct {
	Name           string              `json:"name"`
	RunID          string              `json:"run_id"` // 本轮优化的短标识
	Status         AgentStatus         `json:"status"`
	CurrentRound   int                 `json:"current_round"`
	TotalRounds    int                 `json:"total_rounds"`
	BestScore      float64             `json:"best_score"`
	BestParams     map[string]float64  `json:"best_params,omitempty"`
	BestResult     *BacktestResult     `json:"best_result,omitempty"`
	History        []OptimizationRound `json:"history,omitempty"`
	LiveEnabled    bool                `json:"live_enabled"`
	LastUpdateTime time.Time           `json:"last_update_time"`
}
