package guard

import (
	"fmt"
	"time"
)

// MaybeResume lifts what the agent raised once the cooldown has elapsed and
// no pause latch holds. Flags raised in the current tick are left alone.
func (a *Agent) MaybeResume() []StepResult {
	now := a.clock.Now()
	if a.cfg.KillSwitch || a.st.ddPaused || a.st.dailyPaused {
		return nil
	}
	if !a.st.cooldownUntil.IsZero() && now.Before(a.st.cooldownUntil) {
		return nil
	}
	if a.cfg.Shadow() {
		a.st.cooldownUntil = time.Time{}
		return nil
	}

	var results []StepResult
	sameTick := a.st.raisedTick == a.st.tick

	if a.st.pausedByAgent && !sameTick {
		if a.host.Paused() {
			a.host.SetPaused(false)
			results = append(results, stepOK("resume", "paused"))
		}
		a.st.pausedByAgent = false
	}
	if a.st.skipByAgent && !sameTick && !a.st.volBlocking {
		a.host.SetSkipEntry(false)
		a.st.skipByAgent = false
		results = append(results, stepOK("resume", "skip_entry"))
	}

	if a.forced != nil {
		for _, side := range []Side{Long, Short} {
			if !a.st.globalForced[side] {
				continue
			}
			if err := a.forced.SetForcedMode("", side, ForcedModeNone); err != nil {
				results = append(results, stepFailed("resume", fmt.Errorf("clear global forced mode %s: %w", side, err)))
				continue
			}
			delete(a.st.globalForced, side)
			results = append(results, stepOK("resume", "global_forced_mode "+string(side)))
		}

		_, open := positionsByCoinSide(a.host.Positions())
		for _, key := range sortedCoinSides(a.st.coinForced) {
			if meta, ok := open[key]; ok && meta.size != 0 {
				continue
			}
			if a.forced.ForcedMode(key.Coin, key.Side) == ForcedModeGracefulStop {
				if err := a.forced.SetForcedMode(key.Coin, key.Side, ForcedModeNone); err != nil {
					results = append(results, stepFailed("resume", fmt.Errorf("clear forced mode %s: %w", key, err)))
					continue
				}
			}
			delete(a.st.coinForced, key)
			results = append(results, stepOK("resume", "forced_mode "+key.String()))
		}
	}

	a.st.cooldownUntil = time.Time{}
	if len(results) > 0 {
		a.log.Info().Int("steps", len(results)).Msg("resumed")
	}
	return results
}
