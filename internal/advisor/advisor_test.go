package advisor

import (
	"os"
	"testing"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logger.InitLogger(models.LogConfig{Level: "error", Output: "console"})
	os.Exit(m.Run())
}

func TestClampChangesRelativeBound(t *testing.T) {
	out := ClampChanges(map[string]models.ParamChange{
		"take_profit_percent": {From: 10, To: 50},  // way above +20%
		"stop_loss_percent":   {From: 10, To: 2},   // way below -20%
		"grid_count":          {From: 20, To: 22},  // inside the band
	})
	assert.InDelta(t, 12, out["take_profit_percent"], 1e-9)
	assert.InDelta(t, 8, out["stop_loss_percent"], 1e-9)
	assert.InDelta(t, 22, out["grid_count"], 1e-9)
}

func TestClampChangesAllocationBound(t *testing.T) {
	// +20% of 80 would allow 96, but allocation moves are capped at 10pp.
	out := ClampChanges(map[string]models.ParamChange{
		"position_size_percent": {From: 80, To: 96},
	})
	assert.InDelta(t, 90, out["position_size_percent"], 1e-9)

	// For small allocations the relative bound is the tighter one.
	out = ClampChanges(map[string]models.ParamChange{
		"position_size_percent": {From: 10, To: 19},
	})
	assert.InDelta(t, 12, out["position_size_percent"], 1e-9)
}

func TestClampChangesZeroBaseline(t *testing.T) {
	// A zero baseline admits no change at all.
	out := ClampChanges(map[string]models.ParamChange{
		"trailing_stop_percent": {From: 0, To: 5},
	})
	assert.Zero(t, out["trailing_stop_percent"])
}

func TestEvaluateConfidenceGate(t *testing.T) {
	a := New(0.7)

	rec := models.Recommendation{
		Type:       "param_adjust",
		Changes:    map[string]models.ParamChange{"grid_count": {From: 10, To: 11}},
		Confidence: 0.9,
		AutoApply:  true,
	}
	_, auto := a.Evaluate(rec)
	assert.True(t, auto)

	rec.Confidence = 0.5
	_, auto = a.Evaluate(rec)
	assert.False(t, auto)

	rec.Confidence = 0.9
	rec.AutoApply = false
	_, auto = a.Evaluate(rec)
	assert.False(t, auto)
}
