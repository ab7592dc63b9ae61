// Package sim provides an in-memory host and a manual clock for replaying
// snapshots through the guardrail without a live strategy.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/Rajchodisetti/guardrail-agent/internal/guard"
)

// Clock is a guard.Clock that only moves when told to.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type forcedKey struct {
	coin string
	side guard.Side
}

// Host is an in-memory trading host. It supports every optional capability;
// use WithoutCloser to exercise the forced-mode fallback.
type Host struct {
	mu        sync.Mutex
	paused    bool
	skipEntry bool
	positions []guard.Position
	params    map[guard.Param]float64
	forced    map[forcedKey]guard.ForcedMode
	rejected  map[guard.ParamKind]bool

	// CloseErr, when set, is returned by CloseAllPositions.
	CloseErr   error
	CloseCalls int
}

func NewHost() *Host {
	return &Host{
		params:   make(map[guard.Param]float64),
		forced:   make(map[forcedKey]guard.ForcedMode),
		rejected: make(map[guard.ParamKind]bool),
	}
}

func (h *Host) SetPaused(p bool) {
	h.mu.Lock()
	h.paused = p
	h.mu.Unlock()
}

func (h *Host) SetSkipEntry(s bool) {
	h.mu.Lock()
	h.skipEntry = s
	h.mu.Unlock()
}

func (h *Host) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *Host) SkipEntry() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.skipEntry
}

// SetPositions replaces the open positions the host reports.
func (h *Host) SetPositions(ps []guard.Position) {
	h.mu.Lock()
	h.positions = append([]guard.Position(nil), ps...)
	h.mu.Unlock()
}

func (h *Host) Positions() []guard.Position {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]guard.Position(nil), h.positions...)
}

// Seed stores a parameter value without going through WriteParam.
func (h *Host) Seed(p guard.Param, v float64) {
	h.mu.Lock()
	h.params[p] = v
	h.mu.Unlock()
}

// Reject makes WriteParam refuse every parameter of kind.
func (h *Host) Reject(kind guard.ParamKind) {
	h.mu.Lock()
	h.rejected[kind] = true
	h.mu.Unlock()
}

func (h *Host) ReadParam(p guard.Param) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.params[p]
	return v, ok
}

func (h *Host) WriteParam(p guard.Param, v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !p.Valid() || h.rejected[p.Kind] {
		return fmt.Errorf("%w: %s", guard.ErrUnknownParam, p)
	}
	h.params[p] = v
	return nil
}

// CloseAllPositions flattens every position unless CloseErr is set.
func (h *Host) CloseAllPositions() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CloseCalls++
	if h.CloseErr != nil {
		return h.CloseErr
	}
	h.positions = nil
	return nil
}

func (h *Host) SetForcedMode(coin string, side guard.Side, mode guard.ForcedMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := forcedKey{coin: coin, side: side}
	if mode == guard.ForcedModeNone {
		delete(h.forced, k)
		return nil
	}
	h.forced[k] = mode
	return nil
}

func (h *Host) ForcedMode(coin string, side guard.Side) guard.ForcedMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.forced[forcedKey{coin: coin, side: side}]
}

type withoutCloser struct {
	guard.Host
	guard.ForcedModeController
}

// WithoutCloser hides CloseAllPositions so force-close falls back to
// graceful-stop forced modes.
func (h *Host) WithoutCloser() guard.Host {
	return withoutCloser{Host: h, ForcedModeController: h}
}

// Strategy mimics a live strategy object that only owns grid spacing.
type Strategy struct {
	Spacing map[guard.Side]float64
	Writes  []guard.Adjustment
}

func NewStrategy(long, short float64) *Strategy {
	return &Strategy{Spacing: map[guard.Side]float64{guard.Long: long, guard.Short: short}}
}

func (s *Strategy) WriteParam(p guard.Param, v float64) (float64, bool) {
	if p.Kind != guard.ParamGridSpacing {
		return 0, false
	}
	old := s.Spacing[p.Side]
	s.Spacing[p.Side] = v
	s.Writes = append(s.Writes, guard.Adjustment{Param: p, Value: v})
	return old, true
}
