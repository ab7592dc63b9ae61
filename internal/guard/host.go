package guard

import "errors"

// ErrUnknownParam is returned by a Host that cannot hold a parameter. The
// applier treats it as a skip, not a failure.
var ErrUnknownParam = errors.New("unknown parameter")

// ForcedMode is a per coin/side execution override in the host strategy.
type ForcedMode string

const (
	ForcedModeNone         ForcedMode = ""
	ForcedModeGracefulStop ForcedMode = "graceful_stop"
)

// Host is the trading system the agent protects. Implementations must not
// block for long; calls happen inside the control-loop tick.
type Host interface {
	SetPaused(paused bool)
	SetSkipEntry(skip bool)
	Paused() bool
	Positions() []Position
	ReadParam(p Param) (float64, bool)
	WriteParam(p Param, v float64) error
}

// PositionCloser is implemented by hosts that can flatten every position.
type PositionCloser interface {
	CloseAllPositions() error
}

// ForcedModeController is implemented by hosts supporting forced modes.
// An empty coin addresses the global setting.
type ForcedModeController interface {
	SetForcedMode(coin string, side Side, mode ForcedMode) error
	ForcedMode(coin string, side Side) ForcedMode
}

// Strategy is the live strategy object, when the host exposes one. Writes
// land there first and fall back to the host configuration when ok is false.
type Strategy interface {
	WriteParam(p Param, v float64) (old float64, ok bool)
}
