package guard

import (
	"math"
	"sort"
	"time"

	"github.com/Rajchodisetti/guardrail-agent/internal/config"
)

// Reasons carried in Decision.PauseBot and Decision.Info.
const (
	ReasonKillSwitch  = "kill_switch"
	ReasonSessionDD   = "session_dd"
	ReasonMaxDrawdown = "max_drawdown"
	ReasonDailyLoss   = "daily_loss"

	InfoCooldown          = "cooldown"
	InfoBudgetActionLimit = "budget_action_limit"
	InfoBudgetAdjustLimit = "budget_adjust_limit"
)

// minSpacingFactor bounds how far one streak adjustment may shrink spacing.
const minSpacingFactor = 0.1

// Observe folds a snapshot into the smoothing filters, the session peak and
// the UTC day tracker. Tick calls it before Evaluate.
func (a *Agent) Observe(snap Snapshot) {
	now := a.clock.Now()
	a.st.tick++
	a.st.filters.update(snap, a.cfg.Smoothing.VolEMAAlpha, a.cfg.Smoothing.PnLEMAAlpha)
	if eq := snap.equity(); eq > a.st.peakEquity {
		a.st.peakEquity = eq
	}
	a.rollDay(now)
}

func (a *Agent) rollDay(now time.Time) {
	day := now.UTC().Format(time.DateOnly)
	if day != a.st.day {
		if a.st.day != "" && a.st.dailyPaused {
			a.log.Info().Str("day", day).Msg("new UTC day, daily pause cleared")
		}
		a.st.day = day
		a.st.dailyPaused = false
	}
}

// Evaluate runs the ordered guardrail checks against snap and returns the
// budget-limited decision. Non-empty decisions past the cooldown and
// min-interval gates are audited before budget limiting.
func (a *Agent) Evaluate(snap Snapshot) Decision {
	if !a.cfg.Enabled {
		return Decision{}
	}
	if a.cfg.KillSwitch {
		return Decision{PauseBot: ReasonKillSwitch}
	}

	now := a.clock.Now()
	var d Decision

	if inHalt(a.cfg.Halts, now) {
		d.BlockEntry = true
		a.log.Info().Msg("halt window active, blocking entries")
	}
	if limit := a.cfg.Gates.MaxSpreadPct; limit != nil {
		if spread := snap.spread(); spread != nil && *spread > *limit {
			d.BlockEntry = true
			a.log.Info().Float64("spread_pct", *spread).Float64("max", *limit).Msg("spread gate blocking entries")
		}
	}

	if !a.st.cooldownUntil.IsZero() && now.Before(a.st.cooldownUntil) {
		return Decision{Info: InfoCooldown}
	}
	if !a.st.lastAction.IsZero() && now.Sub(a.st.lastAction) < a.cfg.MinInterval() {
		return Decision{}
	}

	a.checkTradeStop(snap, &d)
	a.checkVolatility(snap, &d)
	a.checkDrawdown(snap, &d)
	a.checkDailyLoss(now, snap, &d)
	streak := a.checkLosingStreak(snap, &d)
	if a.cfg.Rescue.Enabled {
		a.checkRescue(snap, &d)
	}

	if !d.IsEmpty() {
		a.audit(now, snap, d, streak)
	}

	a.st.budget.roll(now)
	if a.cfg.Shadow() {
		return d
	}
	limited, hit := a.st.budget.limit(d, a.cfg.Budgets)
	if hit != "" {
		a.metrics.budgetSkip(hit)
		a.log.Info().
			Str("limit", hit).
			Int("actions_this_hour", a.st.budget.actions).
			Int("adjusts_this_hour", a.st.budget.adjusts).
			Msg("budget limit reached")
	}
	return limited
}

func (a *Agent) checkTradeStop(snap Snapshot, d *Decision) {
	limit := a.cfg.MaxTradeLossPct
	if num(snap.Account.UnrealizedPnLPct) < -limit {
		d.ForceClose = true
		return
	}
	for _, p := range snap.OpenPositions {
		if num(p.UpnlPct) <= -limit {
			d.ForceClose = true
			return
		}
	}
}

func (a *Agent) checkVolatility(snap Snapshot, d *Decision) {
	h := a.cfg.Hysteresis
	if ema := a.st.filters.VolEMA; ema != nil {
		switch {
		case !a.st.volBlocking && *ema >= h.VolatilityEnter:
			a.st.volBlocking = true
			a.log.Info().Float64("vol_ema", *ema).Float64("enter", h.VolatilityEnter).Msg("volatility latch set, blocking entries")
		case a.st.volBlocking && *ema <= h.VolExit():
			a.st.volBlocking = false
			a.log.Info().Float64("vol_ema", *ema).Float64("exit", h.VolExit()).Msg("volatility latch cleared")
		}
	} else if v := finite(snap.Volatility); v != nil && *v > a.cfg.VolatilityThresh {
		a.st.volBlocking = true
	}
	if a.st.volBlocking {
		d.BlockEntry = true
	}
}

func (a *Agent) checkDrawdown(snap Snapshot, d *Decision) {
	if a.st.peakEquity <= 0 {
		return
	}
	dd := math.Max(0, 1-snap.equity()/a.st.peakEquity)
	a.st.lastDD = dd

	h := a.cfg.Hysteresis
	switch {
	case !a.st.ddPaused && dd >= h.DDPauseEnter:
		a.st.ddPaused = true
		d.PauseBot = ReasonSessionDD
		a.log.Info().Float64("dd", dd).Float64("enter", h.DDPauseEnter).Msg("drawdown latch set")
	case a.st.ddPaused && dd <= h.DDExit():
		a.st.ddPaused = false
		a.log.Info().Float64("dd", dd).Float64("exit", h.DDExit()).Msg("drawdown below exit")
	}
	if dd >= a.cfg.MaxDrawdownPct {
		d.PauseBot = ReasonMaxDrawdown
	}
}

func (a *Agent) checkDailyLoss(now time.Time, snap Snapshot, d *Decision) {
	a.rollDay(now)
	realized := finite(snap.Account.RealizedPnLPctToday)
	if realized == nil || a.st.dailyPaused {
		return
	}
	if *realized <= -a.cfg.MaxDailyLossPct {
		d.PauseBot = ReasonDailyLoss
		a.st.dailyPaused = true
		a.log.Info().Float64("realized_pnl_pct_today", *realized).Msg("daily loss limit reached")
	}
}

func (a *Agent) checkLosingStreak(snap Snapshot, d *Decision) int {
	symbol, n := losingStreak(snap.ClosedTrades, a.cfg.LosingStreakWindow)
	if symbol == "" {
		return 0
	}
	a.st.streaks[symbol] = n

	factor := math.Max(minSpacingFactor, 1-a.cfg.LosingStreakAdjustment)
	caps, hasCaps := a.cfg.SymbolCaps(symbol, CoinOf(symbol))
	proposed := false
	for _, side := range []Side{Long, Short} {
		current := snap.liveSpacing(side)
		if current == nil {
			if v, ok := a.host.ReadParam(GridSpacing(side)); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				current = &v
			}
		}
		if current == nil {
			continue
		}
		next := *current * factor
		if hasCaps {
			if b, ok := caps.Lookup(string(side), "grid_spacing_pct"); ok {
				next = b.Clamp(next)
			}
		}
		d.Adjust.Set(GridSpacing(side), next)
		proposed = true
	}
	if proposed {
		d.AffectedSymbol = symbol
	}
	return n
}

func (a *Agent) checkRescue(snap Snapshot, d *Decision) {
	rc := a.cfg.Rescue
	volOK := !a.st.volBlocking
	if ema := a.st.filters.VolEMA; ema != nil && volOK {
		volOK = *ema <= a.cfg.Hysteresis.VolExit()*rc.MaxVolMult
	}

	order, open := positionsByCoinSide(snap.OpenPositions)
	plan := &RescuePlan{}

	if volOK {
		for _, key := range order {
			meta := open[key]
			if meta.size == 0 || meta.upnl > -rc.TriggerLossPct {
				continue
			}
			if _, active := a.st.rescue[key]; active {
				continue
			}
			plan.Engage = append(plan.Engage, key)
			d.Adjust.Set(CoinCloseGridQty(key.Coin, key.Side), rc.CloseGridQtyPct)
		}
	}

	for _, key := range sortedCoinSides(a.st.rescue) {
		meta, ok := open[key]
		if ok && meta.size != 0 && meta.upnl < -rc.ReleaseLossPct {
			continue
		}
		if entry := a.st.rescue[key]; entry.hasBaseline {
			d.Adjust.Set(CoinCloseGridQty(key.Coin, key.Side), entry.baseline)
		}
		plan.Release = append(plan.Release, key)
	}

	if !plan.empty() {
		d.Rescue = plan
	}
}

type rescueEntry struct {
	baseline    float64
	hasBaseline bool
}

func sortedCoinSides[V any](m map[CoinSide]V) []CoinSide {
	keys := make([]CoinSide, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Coin != keys[j].Coin {
			return keys[i].Coin < keys[j].Coin
		}
		return keys[i].Side < keys[j].Side
	})
	return keys
}

// capFor returns the configured bounds for capped parameters.
func capFor(cfg config.AgentConfig, p Param) (config.Bounds, bool) {
	name := p.capName()
	if name == "" {
		return config.Bounds{}, false
	}
	return cfg.ParamCaps.Lookup(string(p.Side), name)
}
