package strategy

import (
	"testing"
	"time"

	"quant-agent-go/internal/indicator"
	"quant-agent-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func momentumConfig() models.StrategyConfig {
	return models.StrategyConfig{
		ID:           "m1",
		Name:         "momentum-test",
		Type:         models.StrategyMomentum,
		Symbol:       "ETHUSDT",
		Leverage:     2,
		TotalCapital: 1000,
		Momentum: &models.MomentumParams{
			TakeProfitPercent:   10,
			StopLossPercent:     5,
			TrailingStopPercent: 2,
			PositionSizePercent: 20,
		},
	}
}

func TestGenerateSignalNeutral(t *testing.T) {
	// All five signals neutral: RSI mid-range, price inside the bands,
	// weak ADX, flat EMA stack, no MACD cross.
	snap := &indicator.Snapshot{
		Close:          100,
		RSI:            50,
		BBUpper:        105,
		BBMiddle:       100,
		BBLower:        95,
		ADX:            15,
		PlusDI:         20,
		MinusDI:        20,
		EMAFast:        100,
		EMAMid:         100,
		EMASlow:        100,
		MACD:           1,
		MACDSignal:     0.5,
		PrevMACD:       1,
		PrevMACDSignal: 0.5,
	}
	sig := GenerateSignal(snap)
	assert.Equal(t, models.None, sig.Direction)
	assert.Zero(t, sig.Confidence)
	assert.Zero(t, sig.LongScore)
	assert.Zero(t, sig.ShortScore)
}

func TestGenerateSignalLong(t *testing.T) {
	// Oversold RSI + breakout above the upper band + strong +DI trend.
	snap := &indicator.Snapshot{
		Close:   110,
		RSI:     25,
		BBUpper: 105,
		BBLower: 95,
		ADX:     30,
		PlusDI:  30,
		MinusDI: 10,
		EMAFast: 100, EMAMid: 100, EMASlow: 100,
	}
	sig := GenerateSignal(snap)
	assert.Equal(t, models.Long, sig.Direction)
	assert.InDelta(t, 5.5, sig.LongScore, 1e-9)
	assert.InDelta(t, 5.5/8, sig.Confidence, 1e-9)
}

func TestGenerateSignalDominanceRequired(t *testing.T) {
	// Long side reaches the score floor but does not dominate the short
	// side by 1.5x, so no direction is emitted.
	snap := &indicator.Snapshot{
		Close:   110,
		RSI:     25, // long +2
		BBUpper: 105,
		BBLower: 95, // breakout above upper band: long +2
		ADX:     30,
		PlusDI:  10,
		MinusDI: 30, // short +1.5
		EMAFast: 90, EMAMid: 95, EMASlow: 100, // short +1.5
	}
	sig := GenerateSignal(snap)
	assert.InDelta(t, 4.0, sig.LongScore, 1e-9)
	assert.InDelta(t, 3.0, sig.ShortScore, 1e-9)
	assert.Equal(t, models.None, sig.Direction)
}

func TestMomentumTrailingStopRatchets(t *testing.T) {
	m, err := NewMomentum(momentumConfig())
	require.NoError(t, err)
	m.SetClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, m.Start())

	m.position = &models.Position{
		ID:           "m1-p1",
		Symbol:       "ETHUSDT",
		Direction:    models.Long,
		EntryPrice:   100,
		Size:         1,
		TakeProfit:   110,
		StopLoss:     95,
		TrailingStop: 98,
		OpenTime:     time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}

	// Price rises: trailing stop ratchets up to 105 * 0.98.
	res, err := m.OnPriceUpdate(105)
	require.NoError(t, err)
	assert.Empty(t, res.ClosedTrades)
	assert.InDelta(t, 105*0.98, m.position.TrailingStop, 1e-9)

	// Small pullback: the stop never loosens.
	res, err = m.OnPriceUpdate(103.5)
	require.NoError(t, err)
	assert.Empty(t, res.ClosedTrades)
	assert.InDelta(t, 105*0.98, m.position.TrailingStop, 1e-9)

	// Deeper pullback crosses the trail and closes in profit.
	res, err = m.OnPriceUpdate(102)
	require.NoError(t, err)
	require.Len(t, res.ClosedTrades, 1)
	assert.Equal(t, "trailing_stop", res.ClosedTrades[0].Reason)
	assert.Greater(t, res.ClosedTrades[0].PnL, 0.0)
	assert.Nil(t, m.position)
}

func TestMomentumSingleOpenPosition(t *testing.T) {
	m, err := NewMomentum(momentumConfig())
	require.NoError(t, err)
	require.NoError(t, m.Start())

	m.position = &models.Position{
		Direction:  models.Long,
		EntryPrice: 100,
		Size:       1,
		TakeProfit: 110,
		StopLoss:   95,
	}

	// With a position open the tick goes to position management only;
	// no second position can be opened regardless of the window state.
	res, err := m.OnPriceUpdate(100)
	require.NoError(t, err)
	assert.Nil(t, res.OpenedPosition)
	assert.Equal(t, 1, m.Stats().OpenPositions)
}

func TestMomentumSkipsWarmup(t *testing.T) {
	m, err := NewMomentum(momentumConfig())
	require.NoError(t, err)
	require.NoError(t, m.Start())

	// Far fewer candles than the indicator warm-up needs: the tick is
	// skipped without error.
	for i := 0; i < 10; i++ {
		m.PushCandle(models.Candle{Close: 100, High: 101, Low: 99, Open: 100})
	}
	res, err := m.OnPriceUpdate(100)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}
