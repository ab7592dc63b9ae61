package guard

import (
	"time"

	"github.com/Rajchodisetti/guardrail-agent/internal/config"
)

// budget counts realized actions inside the current wall-clock hour.
type budget struct {
	bucket  int64
	actions int
	adjusts int
}

func (b *budget) roll(now time.Time) {
	bucket := now.Unix() / 3600 * 3600
	if now.Unix() < 0 && now.Unix()%3600 != 0 {
		bucket -= 3600
	}
	if bucket != b.bucket {
		b.bucket = bucket
		b.actions = 0
		b.adjusts = 0
	}
}

func (b *budget) record(adjust bool) {
	b.actions++
	if adjust {
		b.adjusts++
	}
}

// limit returns d trimmed to the remaining budget and the name of the limit
// that fired, if any.
func (b *budget) limit(d Decision, caps config.Budgets) (Decision, string) {
	if !d.Acts() {
		return d, ""
	}
	if b.actions+1 > caps.MaxActionsPerHour {
		return Decision{Info: InfoBudgetActionLimit}, "action"
	}
	if d.HasAdjust() && b.adjusts+1 > caps.MaxAdjustsPerHour {
		d.Adjust = nil
		d.Rescue = nil
		d.Info = InfoBudgetAdjustLimit
		return d, "adjust"
	}
	return d, ""
}
