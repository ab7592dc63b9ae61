package calibrate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/guardrail-agent/internal/audit"
)

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}
	testCases := []struct {
		q    float64
		want float64
	}{
		{-1, 1},
		{0, 1},
		{0.5, 3},
		{0.9, 4.6},
		{0.95, 4.8},
		{1, 5},
		{2, 5},
	}
	for _, tc := range testCases {
		assert.InDelta(t, tc.want, Percentile(values, tc.q), 1e-12, "q=%v", tc.q)
	}
	assert.True(t, math.IsNaN(Percentile(nil, 0.5)))
	assert.Equal(t, []float64{4, 1, 3, 2, 5}, values, "input left unsorted")
}

func rec(ts float64, decision string, vol, upnl float64) audit.Record {
	return audit.Record{
		TS:       ts,
		Decision: []byte(decision),
		Filters:  audit.Filters{VolEMA: &vol, UpnlEMA: &upnl},
	}
}

func TestSummarize(t *testing.T) {
	const h0 = 1_700_002_800 // hour aligned
	records := []audit.Record{
		rec(h0+10, `{"pause_bot":"daily_loss"}`, 0.01, -0.01),
		rec(h0+20, `{"block_entry":true,"adjust":{"long.grid_spacing_pct":0.016}}`, 0.02, -0.02),
		rec(h0+30, `{"pause_bot":"session_dd","force_close":true}`, 0.03, -0.03),
		rec(h0+3600, `{"info":"budget_adjust_limit","block_entry":true}`, 0.04, -0.04),
		rec(h0+3700, `{"info":"budget_action_limit"}`, 0.05, -0.05),
	}

	r := Summarize(records)
	s := r.Summary
	assert.Equal(t, Counts{Pause: 2, Block: 2, ForceClose: 1, Adjust: 1}, s.Counts)
	assert.Equal(t, map[string]int{"daily_loss": 1, "session_dd": 1}, s.PauseReasons)
	assert.Equal(t, BudgetSkips{Action: 1, Adjust: 1}, s.Budgets.BudgetSkips)

	require.NotNil(t, s.Filters.VolEMAP90)
	assert.InDelta(t, 0.046, *s.Filters.VolEMAP90, 1e-12)
	assert.InDelta(t, 0.01, *s.Filters.VolEMAMin, 1e-12)
	assert.InDelta(t, -0.046, *s.Filters.UpnlEMAP10, 1e-12)

	// hour 0: 5 actions, hour 1: 1 action
	assert.InDelta(t, 4.8, s.Budgets.HourlyActionsP95, 1e-12)
	assert.InDelta(t, 1.0, s.Budgets.HourlyAdjustsP95, 1e-12)

	require.NotNil(t, r.Suggestions.Hysteresis)
	assert.Equal(t, 0.046, r.Suggestions.Hysteresis.VolatilityEnter)
	assert.Equal(t, 0.0345, r.Suggestions.Hysteresis.VolatilityExit)
	assert.Equal(t, BudgetSuggestion{MaxActionsPerHour: 6, MaxAdjustsPerHour: 2}, r.Suggestions.Budgets)
}

func TestSummarize_NoActions(t *testing.T) {
	r := Summarize([]audit.Record{{TS: 1, Decision: []byte(`{"info":"budget_action_limit"}`)}})
	assert.Nil(t, r.Summary.Filters.VolEMAP90)
	assert.Nil(t, r.Suggestions.Hysteresis)
	assert.Zero(t, r.Summary.Budgets.HourlyActionsP95)
	assert.Equal(t, BudgetSuggestion{MaxActionsPerHour: 1, MaxAdjustsPerHour: 1}, r.Suggestions.Budgets)
}
