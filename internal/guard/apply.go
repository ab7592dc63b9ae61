package guard

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Apply executes d against the host. strategy may be nil. Every present field
// yields a StepResult; nothing here panics out to the caller.
func (a *Agent) Apply(d Decision, strategy Strategy) []StepResult {
	now := a.clock.Now()
	var results []StepResult
	acted := false

	if d.PauseBot != "" {
		acted = true
		if a.cfg.Shadow() {
			a.log.Info().Str("reason", d.PauseBot).Msg("shadow: pause suppressed")
			results = append(results, stepSkipped("pause", "shadow"))
		} else {
			a.host.SetPaused(true)
			a.host.SetSkipEntry(true)
			a.st.pausedByAgent = true
			a.st.skipByAgent = true
			a.st.raisedTick = a.st.tick
			a.log.Warn().Str("reason", d.PauseBot).Msg("pausing bot")
			results = append(results, stepOK("pause", d.PauseBot))
		}
	}

	if d.BlockEntry {
		acted = true
		if a.cfg.Shadow() {
			a.log.Info().Msg("shadow: block entries suppressed")
			results = append(results, stepSkipped("block_entry", "shadow"))
		} else {
			a.host.SetSkipEntry(true)
			a.st.skipByAgent = true
			a.st.raisedTick = a.st.tick
			a.log.Info().Msg("blocking entries")
			results = append(results, stepOK("block_entry", ""))
		}
	}

	if d.ForceClose {
		res := a.forceClose()
		results = append(results, res)
		if res.Status != StatusFailed {
			acted = true
			if !a.cfg.Shadow() {
				a.extendCooldown(now.Add(a.cfg.ForceCloseCooldown()))
			}
		}
	}

	if d.HasAdjust() {
		acted = true
		if !d.Rescue.empty() {
			a.captureBaselines(d.Rescue.Engage)
		}
		if a.cfg.Shadow() {
			a.log.Info().Int("params", len(d.Adjust)).Msg("shadow: adjust suppressed")
			results = append(results, stepSkipped("adjust", "shadow"))
		} else {
			for _, adj := range d.Adjust {
				results = append(results, a.setParam(strategy, adj.Param, adj.Value))
			}
			a.extendCooldown(now.Add(a.cfg.AdjustCooldown()))
		}
		if !d.Rescue.empty() {
			for _, key := range d.Rescue.Release {
				delete(a.st.rescue, key)
				a.log.Info().Str("coin", key.Coin).Str("side", string(key.Side)).Msg("rescue released")
			}
		}
	}

	if acted && !a.cfg.Shadow() {
		a.st.lastAction = now
		a.st.budget.roll(now)
		a.st.budget.record(d.HasAdjust())
	}
	for _, kind := range d.Kinds() {
		a.metrics.decision(kind)
	}
	return results
}

// extendCooldown never shortens an already scheduled cooldown.
func (a *Agent) extendCooldown(until time.Time) {
	if until.After(a.st.cooldownUntil) {
		a.st.cooldownUntil = until
	}
}

func (a *Agent) forceClose() StepResult {
	const step = "force_close"
	if a.cfg.Shadow() {
		a.log.Info().Msg("shadow: force close suppressed")
		return stepSkipped(step, "shadow")
	}
	if a.cfg.DryRun() {
		a.log.Info().Msg("dry-run: would force close all positions")
		return stepOK(step, "dry-run")
	}

	if a.closer != nil {
		if err := a.closer.CloseAllPositions(); err != nil {
			a.log.Error().Err(err).Msg("force close failed")
			return stepFailed(step, fmt.Errorf("close all positions: %w", err))
		}
		a.host.SetPaused(true)
		a.host.SetSkipEntry(true)
		a.st.pausedByAgent = true
		a.st.skipByAgent = true
		a.st.raisedTick = a.st.tick
		a.log.Warn().Msg("force closed all positions")
		return stepOK(step, "close_all")
	}

	if a.forced == nil {
		return stepFailed(step, errors.New("host supports neither close-all nor forced modes"))
	}

	// Open coin/sides already in graceful stop count as handled; the global
	// mode is only for hosts with no open position.
	var applied, held []CoinSide
	var errs []error
	for _, p := range a.host.Positions() {
		side, ok := ParseSide(p.PositionSide)
		if !ok || num(p.Size) == 0 {
			continue
		}
		key := CoinSide{Coin: CoinOf(p.Symbol), Side: side}
		if key.Coin == "" {
			continue
		}
		if a.st.coinForced[key] {
			held = append(held, key)
			continue
		}
		if err := a.forced.SetForcedMode(key.Coin, key.Side, ForcedModeGracefulStop); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		a.st.coinForced[key] = true
		applied = append(applied, key)
	}
	if len(applied) > 0 {
		a.log.Warn().Stringer("keys", coinSides(applied)).Msg("graceful stop engaged per symbol")
		return stepOK(step, "graceful_stop")
	}
	if len(errs) > 0 {
		return stepFailed(step, errors.Join(errs...))
	}
	if len(held) > 0 {
		a.log.Info().Stringer("keys", coinSides(held)).Msg("graceful stop already engaged")
		return stepOK(step, "graceful_stop")
	}

	for _, side := range []Side{Long, Short} {
		if err := a.forced.SetForcedMode("", side, ForcedModeGracefulStop); err != nil {
			return stepFailed(step, fmt.Errorf("global graceful stop %s: %w", side, err))
		}
		a.st.globalForced[side] = true
	}
	a.log.Warn().Msg("graceful stop engaged globally")
	return stepOK(step, "global_graceful_stop")
}

// captureBaselines records the pre-rescue close-grid quantity of each engaged
// coin/side, before the override for it is written.
func (a *Agent) captureBaselines(engaged []CoinSide) {
	for _, key := range engaged {
		if _, ok := a.st.rescue[key]; ok {
			continue
		}
		var entry rescueEntry
		if v, ok := a.host.ReadParam(CoinCloseGridQty(key.Coin, key.Side)); ok {
			entry = rescueEntry{baseline: v, hasBaseline: true}
		} else if v, ok := a.host.ReadParam(CloseGridQty(key.Side)); ok {
			entry = rescueEntry{baseline: v, hasBaseline: true}
		}
		a.st.rescue[key] = entry
		a.log.Info().
			Str("coin", key.Coin).
			Str("side", string(key.Side)).
			Bool("baseline_known", entry.hasBaseline).
			Float64("baseline", entry.baseline).
			Msg("rescue engaged")
	}
}

// setParam is the capped set: clamp grid spacing and position size to
// param_caps, then write to the strategy or, failing that, the host.
func (a *Agent) setParam(strategy Strategy, p Param, v float64) StepResult {
	step := "adjust " + p.String()
	if !p.Valid() || math.IsNaN(v) || math.IsInf(v, 0) {
		return stepSkipped(step, "invalid target")
	}
	if b, ok := capFor(a.cfg, p); ok {
		v = b.Clamp(v)
	}
	if a.cfg.DryRun() {
		a.log.Info().Str("param", p.String()).Float64("value", v).Msg("dry-run: would set param")
		return stepOK(step, "dry-run")
	}
	if strategy != nil {
		if old, ok := strategy.WriteParam(p, v); ok {
			a.log.Info().Str("param", p.String()).Float64("old", old).Float64("new", v).Msg("strategy param set")
			return stepOK(step, "strategy")
		}
	}
	if err := a.host.WriteParam(p, v); err != nil {
		if errors.Is(err, ErrUnknownParam) {
			return stepSkipped(step, "unknown param")
		}
		return stepFailed(step, err)
	}
	a.log.Info().Str("param", p.String()).Float64("new", v).Msg("config param set")
	return stepOK(step, "config")
}

type coinSides []CoinSide

func (c coinSides) String() string {
	s := ""
	for i, k := range c {
		if i > 0 {
			s += ","
		}
		s += k.String()
	}
	return s
}
