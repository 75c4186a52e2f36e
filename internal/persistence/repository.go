package persistence

import "quant-agent-go/internal/models"

// Repository abstracts durable storage for strategy configuration and
// agent progress. Implementations must be safe for concurrent use; the
// core treats them as synchronous and authoritative for restart recovery.
type Repository interface {
	// Strategy configuration.
	SaveStrategy(cfg models.StrategyConfig) error
	LoadStrategies() ([]models.StrategyConfig, error)
	DeleteStrategy(id string) error
	// UpdateParams applies tunable parameter values to a stored config.
	// The updated config is re-validated before it is written back.
	UpdateParams(id string, params map[string]float64) error
	ToggleStrategy(id string, enabled bool) error

	// Agent state snapshots, keyed by agent name.
	SaveAgentState(state models.AgentState) error
	LoadAgentState(name string) (*models.AgentState, error)

	// Completed trades, append-only.
	AppendTrade(trade models.TradeRecord) error
	LoadTrades(symbol string) ([]models.TradeRecord, error)

	Close() error
}
