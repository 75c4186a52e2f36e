package persistence

import (
	"testing"
	"time"

	"quant-agent-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRepo(t *testing.T) Repository {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestStrategyRoundTrip(t *testing.T) {
	repo := openRepo(t)

	cfg := models.StrategyConfig{
		ID:           "g1",
		Name:         "grid-main",
		Type:         models.StrategyGridBot,
		Symbol:       "BTCUSDT",
		Leverage:     2,
		TotalCapital: 5000,
		Enabled:      true,
		Grid: &models.GridParams{
			UpperPrice: 110, LowerPrice: 90, GridCount: 10, StopLossPercent: 10,
		},
	}
	require.NoError(t, repo.SaveStrategy(cfg))

	loaded, err := repo.LoadStrategies()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, cfg, loaded[0])

	require.NoError(t, repo.DeleteStrategy("g1"))
	loaded, err = repo.LoadStrategies()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestUpdateParams(t *testing.T) {
	repo := openRepo(t)
	require.NoError(t, repo.SaveStrategy(models.StrategyConfig{
		ID:           "g1",
		Name:         "grid-main",
		Type:         models.StrategyGridBot,
		Symbol:       "BTCUSDT",
		Leverage:     2,
		TotalCapital: 5000,
		Grid: &models.GridParams{
			UpperPrice: 110, LowerPrice: 90, GridCount: 10, StopLossPercent: 10,
		},
	}))

	require.NoError(t, repo.UpdateParams("g1", map[string]float64{
		"grid_count":        12,
		"stop_loss_percent": 8,
	}))
	loaded, err := repo.LoadStrategies()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 12, loaded[0].Grid.GridCount)
	assert.InDelta(t, 8, loaded[0].Grid.StopLossPercent, 1e-9)

	// An update that breaks validation is rejected and leaves the
	// stored config untouched.
	assert.Error(t, repo.UpdateParams("g1", map[string]float64{"grid_count": 1}))
	loaded, err = repo.LoadStrategies()
	require.NoError(t, err)
	assert.Equal(t, 12, loaded[0].Grid.GridCount)

	assert.Error(t, repo.UpdateParams("missing", map[string]float64{"grid_count": 10}))
}

func TestToggleStrategy(t *testing.T) {
	repo := openRepo(t)
	require.NoError(t, repo.SaveStrategy(models.StrategyConfig{
		ID:           "g1",
		Name:         "grid-main",
		Type:         models.StrategyGridBot,
		Symbol:       "BTCUSDT",
		Leverage:     2,
		TotalCapital: 5000,
		Enabled:      false,
		Grid: &models.GridParams{
			UpperPrice: 110, LowerPrice: 90, GridCount: 10, StopLossPercent: 10,
		},
	}))

	require.NoError(t, repo.ToggleStrategy("g1", true))
	loaded, err := repo.LoadStrategies()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].Enabled)

	assert.Error(t, repo.ToggleStrategy("missing", true))
}

func TestSaveStrategyRejectsEmptyID(t *testing.T) {
	repo := openRepo(t)
	assert.Error(t, repo.SaveStrategy(models.StrategyConfig{}))
}

func TestAgentStateRoundTrip(t *testing.T) {
	repo := openRepo(t)

	// No snapshot yet: nil without error.
	st, err := repo.LoadAgentState("opt-1")
	require.NoError(t, err)
	assert.Nil(t, st)

	state := models.AgentState{
		Name:         "opt-1",
		RunID:        "abc123",
		Status:       models.AgentOptimizing,
		CurrentRound: 7,
		TotalRounds:  50,
		BestScore:    42.5,
		BestParams:   map[string]float64{"grid_count": 12},
	}
	require.NoError(t, repo.SaveAgentState(state))

	st, err = repo.LoadAgentState("opt-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, state.RunID, st.RunID)
	assert.Equal(t, state.BestParams, st.BestParams)
	assert.Equal(t, models.AgentOptimizing, st.Status)
}

func TestTradeLogFilterBySymbol(t *testing.T) {
	repo := openRepo(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		require.NoError(t, repo.AppendTrade(models.TradeRecord{
			ID:       string(rune('a' + i)),
			Symbol:   sym,
			Side:     models.Sell,
			PnL:      float64(i),
			ExitTime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	btc, err := repo.LoadTrades("BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	all, err := repo.LoadTrades("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
