// Package calibrate turns an audit log into observed statistics and
// conservative threshold suggestions.
package calibrate

import (
	"math"
	"sort"

	"github.com/Rajchodisetti/guardrail-agent/internal/audit"
)

// Percentile interpolates linearly between closest ranks. q <= 0 yields the
// minimum, q >= 1 the maximum and an empty input NaN.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	vs := append([]float64(nil), values...)
	sort.Float64s(vs)
	if q <= 0 {
		return vs[0]
	}
	if q >= 1 {
		return vs[len(vs)-1]
	}
	idx := q * float64(len(vs)-1)
	lo := int(idx)
	hi := min(lo+1, len(vs)-1)
	w := idx - float64(lo)
	return vs[lo]*(1-w) + vs[hi]*w
}

type Counts struct {
	Pause      int `json:"pause"`
	Block      int `json:"block"`
	ForceClose int `json:"force_close"`
	Adjust     int `json:"adjust"`
}

type Filters struct {
	VolEMAMin  *float64 `json:"vol_ema_min"`
	VolEMAMax  *float64 `json:"vol_ema_max"`
	VolEMAP50  *float64 `json:"vol_ema_p50"`
	VolEMAP90  *float64 `json:"vol_ema_p90"`
	UpnlEMAMin *float64 `json:"upnl_ema_min"`
	UpnlEMAMax *float64 `json:"upnl_ema_max"`
	UpnlEMAP10 *float64 `json:"upnl_ema_p10"`
}

type BudgetSkips struct {
	Action int `json:"action"`
	Adjust int `json:"adjust"`
}

type Budgets struct {
	HourlyActionsP95 float64     `json:"hourly_actions_p95"`
	HourlyAdjustsP95 float64     `json:"hourly_adjusts_p95"`
	BudgetSkips      BudgetSkips `json:"budget_skips"`
}

type Summary struct {
	Counts       Counts         `json:"counts"`
	PauseReasons map[string]int `json:"pause_reasons"`
	Filters      Filters        `json:"filters"`
	Budgets      Budgets        `json:"budgets"`
}

type HysteresisSuggestion struct {
	VolatilityEnter float64 `json:"volatility_enter"`
	VolatilityExit  float64 `json:"volatility_exit"`
}

type BudgetSuggestion struct {
	MaxActionsPerHour int `json:"max_actions_per_hour"`
	MaxAdjustsPerHour int `json:"max_adjusts_per_hour"`
}

type Suggestions struct {
	Hysteresis *HysteresisSuggestion `json:"hysteresis"`
	Budgets    BudgetSuggestion      `json:"budgets"`
}

// Report is the calibration output document.
type Report struct {
	Summary     Summary     `json:"summary"`
	Suggestions Suggestions `json:"suggestions"`
}

// Summarize computes the report for records (any order).
func Summarize(records []audit.Record) Report {
	var s Summary
	s.PauseReasons = make(map[string]int)
	var volEMAs, upnlEMAs []float64
	actionsByHour := make(map[int64]int)
	adjustsByHour := make(map[int64]int)

	for _, rec := range records {
		hour := int64(rec.TS) / 3600 * 3600
		d := rec.View()
		if d.PauseBot != "" {
			s.Counts.Pause++
			s.PauseReasons[d.PauseBot]++
			actionsByHour[hour]++
		}
		if d.BlockEntry {
			s.Counts.Block++
			actionsByHour[hour]++
		}
		if d.ForceClose {
			s.Counts.ForceClose++
			actionsByHour[hour]++
		}
		if d.Adjust != nil {
			s.Counts.Adjust++
			actionsByHour[hour]++
			adjustsByHour[hour]++
		}
		switch d.Info {
		case "budget_action_limit":
			s.Budgets.BudgetSkips.Action++
		case "budget_adjust_limit":
			s.Budgets.BudgetSkips.Adjust++
		}
		if v := rec.Filters.VolEMA; v != nil && !math.IsNaN(*v) {
			volEMAs = append(volEMAs, *v)
		}
		if v := rec.Filters.UpnlEMA; v != nil && !math.IsNaN(*v) {
			upnlEMAs = append(upnlEMAs, *v)
		}
	}

	if len(volEMAs) > 0 {
		s.Filters.VolEMAMin = ptr(Percentile(volEMAs, 0))
		s.Filters.VolEMAMax = ptr(Percentile(volEMAs, 1))
		s.Filters.VolEMAP50 = ptr(Percentile(volEMAs, 0.5))
		s.Filters.VolEMAP90 = ptr(Percentile(volEMAs, 0.9))
	}
	if len(upnlEMAs) > 0 {
		s.Filters.UpnlEMAMin = ptr(Percentile(upnlEMAs, 0))
		s.Filters.UpnlEMAMax = ptr(Percentile(upnlEMAs, 1))
		s.Filters.UpnlEMAP10 = ptr(Percentile(upnlEMAs, 0.1))
	}
	s.Budgets.HourlyActionsP95 = Percentile(hourlyCounts(actionsByHour), 0.95)
	s.Budgets.HourlyAdjustsP95 = Percentile(hourlyCounts(adjustsByHour), 0.95)

	r := Report{Summary: s}
	if p90 := s.Filters.VolEMAP90; p90 != nil && *p90 != 0 {
		r.Suggestions.Hysteresis = &HysteresisSuggestion{
			VolatilityEnter: round6(*p90),
			VolatilityExit:  round6(0.75 * *p90),
		}
	}
	r.Suggestions.Budgets = BudgetSuggestion{
		MaxActionsPerHour: int(s.Budgets.HourlyActionsP95*1.2 + 1),
		MaxAdjustsPerHour: int(s.Budgets.HourlyAdjustsP95*1.2 + 1),
	}
	return r
}

// hourlyCounts treats a log with no actions as one idle hour.
func hourlyCounts(byHour map[int64]int) []float64 {
	if len(byHour) == 0 {
		return []float64{0}
	}
	out := make([]float64, 0, len(byHour))
	for _, n := range byHour {
		out = append(out, float64(n))
	}
	return out
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

func ptr(v float64) *float64 { return &v }
