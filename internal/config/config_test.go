package config

import (
	"os"
	"path/filepath"
	"testing"

	"quant-agent-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"log": {"level": "info", "output": "console"},
		"strategies": [],
		"agents": []
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.ThrottleIntervalMs)
	assert.Equal(t, 30, cfg.BacktestDays)
	assert.Equal(t, "data/agent.db", cfg.DBPath)
}

func TestLoadConfigValidStrategy(t *testing.T) {
	path := writeConfig(t, `{
		"throttle_interval_ms": 500,
		"strategies": [{
			"id": "g1",
			"name": "grid-main",
			"type": "grid",
			"symbol": "BTCUSDT",
			"leverage": 2,
			"total_capital": 5000,
			"enabled": true,
			"grid": {"upper_price": 110, "lower_price": 90, "grid_count": 10, "stop_loss_percent": 10}
		}]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.ThrottleIntervalMs)
	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, models.StrategyGridBot, cfg.Strategies[0].Type)
}

func TestLoadConfigRejectsInvalidStrategy(t *testing.T) {
	// Grid bounds inverted: must fail at load, never at runtime.
	path := writeConfig(t, `{
		"strategies": [{
			"id": "g1",
			"name": "bad-grid",
			"type": "grid",
			"symbol": "BTCUSDT",
			"leverage": 1,
			"total_capital": 1000,
			"grid": {"upper_price": 90, "lower_price": 110, "grid_count": 10, "stop_loss_percent": 10}
		}]
	}`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalidAgentStrategy(t *testing.T) {
	path := writeConfig(t, `{
		"agents": [{
			"name": "opt-1",
			"optimization_rounds": 10,
			"strategy": {
				"id": "m1",
				"name": "momentum",
				"type": "momentum",
				"symbol": "ETHUSDT",
				"leverage": 99,
				"total_capital": 1000,
				"momentum": {"take_profit_percent": 5, "stop_loss_percent": 3, "position_size_percent": 20}
			}
		}]
	}`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
