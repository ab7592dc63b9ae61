// Package guard is the guardrail decision engine: it watches per-tick
// account snapshots and pauses, blocks, force-closes or retunes the host
// strategy to bound losses.
package guard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/guardrail-agent/internal/audit"
	"github.com/Rajchodisetti/guardrail-agent/internal/config"
	"github.com/Rajchodisetti/guardrail-agent/internal/observ"
)

// Agent evaluates snapshots against an immutable configuration. It is driven
// by one control loop and is not safe for concurrent use.
type Agent struct {
	cfg    config.AgentConfig
	host   Host
	closer PositionCloser
	forced ForcedModeController

	clock   Clock
	log     zerolog.Logger
	sink    audit.Sink
	auditRL *rate.Limiter
	metrics agentMetrics

	st state
}

type state struct {
	tick    uint64
	filters FilterState

	volBlocking bool
	ddPaused    bool
	dailyPaused bool
	day         string
	peakEquity  float64
	lastDD      float64

	budget        budget
	lastAction    time.Time
	cooldownUntil time.Time

	streaks map[string]int
	rescue  map[CoinSide]rescueEntry

	pausedByAgent bool
	skipByAgent   bool
	raisedTick    uint64
	globalForced  map[Side]bool
	coinForced    map[CoinSide]bool
}

type Option func(*options)

type options struct {
	clock     Clock
	logger    *zerolog.Logger
	auditPath string
	sink      audit.Sink
}

func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = &l } }

// WithAuditLog overrides the configured audit log path.
func WithAuditLog(path string) Option { return func(o *options) { o.auditPath = path } }

// WithAuditSink replaces the file sink entirely.
func WithAuditSink(s audit.Sink) Option { return func(o *options) { o.sink = s } }

// New wires an agent to host. Optional capabilities (PositionCloser,
// ForcedModeController) are resolved here once.
func New(cfg config.AgentConfig, host Host, opts ...Option) *Agent {
	o := options{clock: SystemClock, auditPath: cfg.AuditLogPath}
	for _, opt := range opts {
		opt(&o)
	}
	base := observ.Logger()
	if o.logger != nil {
		base = *o.logger
	}
	sink := o.sink
	if sink == nil && o.auditPath != "" {
		sink = audit.NewFile(o.auditPath)
	}

	a := &Agent{
		cfg:     cfg,
		host:    host,
		clock:   o.clock,
		log:     base.With().Str("component", "guardrail").Str("mode", cfg.Mode).Logger(),
		sink:    sink,
		auditRL: rate.NewLimiter(rate.Every(time.Minute), 1),
		st: state{
			streaks:      make(map[string]int),
			rescue:       make(map[CoinSide]rescueEntry),
			globalForced: make(map[Side]bool),
			coinForced:   make(map[CoinSide]bool),
		},
	}
	if c, ok := host.(PositionCloser); ok {
		a.closer = c
	}
	if f, ok := host.(ForcedModeController); ok {
		a.forced = f
	}
	return a
}

// TickResult is what one control-loop tick decided and did.
type TickResult struct {
	Decision Decision     `json:"decision"`
	Steps    []StepResult `json:"steps,omitempty"`
}

// Tick runs observe, evaluate, apply and resume in order. It never panics;
// internal failures come back as failed steps.
func (a *Agent) Tick(snap Snapshot, strategy Strategy) (res TickResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("recovered: %v", r)
			a.log.Error().Err(err).Msg("guardrail tick panicked")
			a.metrics.stepFailure("panic")
			res.Steps = append(res.Steps, stepFailed("panic", err))
		}
	}()

	a.Observe(snap)
	res.Decision = a.Evaluate(snap)
	res.Steps = append(res.Steps, a.Apply(res.Decision, strategy)...)
	res.Steps = append(res.Steps, a.MaybeResume()...)

	for _, f := range Failed(res.Steps) {
		a.log.Warn().Str("step", f.Step).Str("reason", f.Reason).Msg("guardrail step failed")
		a.metrics.stepFailure(f.Step)
	}
	a.publish()
	return res
}

func (a *Agent) audit(now time.Time, snap Snapshot, d Decision, streak int) {
	if a.sink == nil {
		return
	}
	body, err := json.Marshal(d)
	if err == nil {
		symbol := d.AffectedSymbol
		if symbol == "" {
			symbol = "multi"
		}
		err = a.sink.Append(audit.Record{
			TS:               epoch(now),
			Symbol:           symbol,
			Equity:           num(snap.Account.Balance),
			UnrealizedPnLPct: num(snap.Account.UnrealizedPnLPct),
			Volatility:       finite(snap.Volatility),
			LosingStreak:     streak,
			Decision:         body,
			Mode:             a.cfg.Mode,
			Filters:          audit.Filters{VolEMA: a.st.filters.VolEMA, UpnlEMA: a.st.filters.UpnlEMA},
		})
	}
	if err != nil {
		a.metrics.auditError()
		if a.auditRL.AllowN(now, 1) {
			a.log.Warn().Err(err).Msg("audit append failed")
		}
	}
}

// Status is a point-in-time view of the agent's internal state.
type Status struct {
	Mode       string      `json:"mode"`
	Enabled    bool        `json:"enabled"`
	KillSwitch bool        `json:"kill_switch"`
	Filters    FilterState `json:"filters"`

	Hysteresis struct {
		VolatilityEnter float64 `json:"volatility_enter"`
		VolatilityExit  float64 `json:"volatility_exit"`
		DDPauseEnter    float64 `json:"dd_pause_enter"`
		DDPauseExit     float64 `json:"dd_pause_exit"`
	} `json:"hysteresis"`

	Budgets struct {
		MaxActionsPerHour int `json:"max_actions_per_hour"`
		MaxAdjustsPerHour int `json:"max_adjusts_per_hour"`
		ActionsThisHour   int `json:"actions_this_hour"`
		AdjustsThisHour   int `json:"adjusts_this_hour"`
	} `json:"budgets"`

	CooldownUntilTS float64 `json:"cooldown_until_ts"`
	LastActionTS    float64 `json:"last_action_ts"`

	Latches struct {
		BlockingDueToVol bool `json:"blocking_due_to_vol"`
		PausedDueToDD    bool `json:"paused_due_to_dd"`
		PausedDueToDaily bool `json:"paused_due_to_daily"`
	} `json:"latches"`

	SessionPeakEquity float64        `json:"session_peak_equity"`
	LastDDRatio       float64        `json:"last_dd_ratio"`
	Rescues           []CoinSide     `json:"rescues"`
	LosingStreaks     map[string]int `json:"losing_streaks,omitempty"`
}

func (a *Agent) Status() Status {
	var s Status
	s.Mode = a.cfg.Mode
	s.Enabled = a.cfg.Enabled
	s.KillSwitch = a.cfg.KillSwitch
	s.Filters = a.st.filters

	h := a.cfg.Hysteresis
	s.Hysteresis.VolatilityEnter = h.VolatilityEnter
	s.Hysteresis.VolatilityExit = h.VolExit()
	s.Hysteresis.DDPauseEnter = h.DDPauseEnter
	s.Hysteresis.DDPauseExit = h.DDExit()

	a.st.budget.roll(a.clock.Now())
	s.Budgets.MaxActionsPerHour = a.cfg.Budgets.MaxActionsPerHour
	s.Budgets.MaxAdjustsPerHour = a.cfg.Budgets.MaxAdjustsPerHour
	s.Budgets.ActionsThisHour = a.st.budget.actions
	s.Budgets.AdjustsThisHour = a.st.budget.adjusts

	if !a.st.cooldownUntil.IsZero() {
		s.CooldownUntilTS = epoch(a.st.cooldownUntil)
	}
	if !a.st.lastAction.IsZero() {
		s.LastActionTS = epoch(a.st.lastAction)
	}
	s.Latches.BlockingDueToVol = a.st.volBlocking
	s.Latches.PausedDueToDD = a.st.ddPaused
	s.Latches.PausedDueToDaily = a.st.dailyPaused
	s.SessionPeakEquity = a.st.peakEquity
	s.LastDDRatio = a.st.lastDD
	s.Rescues = sortedCoinSides(a.st.rescue)
	if len(a.st.streaks) > 0 {
		s.LosingStreaks = make(map[string]int, len(a.st.streaks))
		for sym, n := range a.st.streaks {
			s.LosingStreaks[sym] = n
		}
	}
	return s
}

type agentMetrics struct{}

func (agentMetrics) decision(kind string)    { observ.DecisionsTotal.WithLabelValues(kind).Inc() }
func (agentMetrics) budgetSkip(limit string) { observ.BudgetSkipsTotal.WithLabelValues(limit).Inc() }
func (agentMetrics) stepFailure(step string) { observ.StepFailuresTotal.WithLabelValues(step).Inc() }
func (agentMetrics) auditError()             { observ.AuditWriteErrorsTotal.Inc() }

// publish pushes the current state into the gauges.
func (a *Agent) publish() {
	if v := a.st.filters.VolEMA; v != nil {
		observ.VolEMA.Set(*v)
	}
	if v := a.st.filters.UpnlEMA; v != nil {
		observ.UpnlEMA.Set(*v)
	}
	observ.DrawdownRatio.Set(a.st.lastDD)
	observ.Latch.WithLabelValues("blocking_due_to_vol").Set(observ.BoolGauge(a.st.volBlocking))
	observ.Latch.WithLabelValues("paused_due_to_dd").Set(observ.BoolGauge(a.st.ddPaused))
	observ.Latch.WithLabelValues("paused_due_to_daily").Set(observ.BoolGauge(a.st.dailyPaused))
	observ.ActionsThisHour.Set(float64(a.st.budget.actions))
	observ.AdjustsThisHour.Set(float64(a.st.budget.adjusts))
	observ.RescueActive.Set(float64(len(a.st.rescue)))
}
