package guard

import "time"

// Clock supplies "now" to every time-dependent rule.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
