package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid guardrail config")

// Operating modes
const (
	ModeLive   = "live"
	ModeShadow = "shadow"
	ModeDryRun = "dry-run"
)

// Hysteresis holds the enter/exit pairs for the gated signals. An unset exit
// derives from its enter threshold.
type Hysteresis struct {
	VolatilityEnter float64  `yaml:"volatility_enter"`
	VolatilityExit  *float64 `yaml:"volatility_exit"`
	DDPauseEnter    float64  `yaml:"dd_pause_enter"`
	DDPauseExit     *float64 `yaml:"dd_pause_exit"`
}

// VolExit returns the volatility exit threshold (0.75 x enter when unset).
func (h Hysteresis) VolExit() float64 {
	if h.VolatilityExit != nil {
		return *h.VolatilityExit
	}
	return math.Max(0, 0.75*h.VolatilityEnter)
}

// DDExit returns the drawdown exit threshold (0.8 x enter when unset).
func (h Hysteresis) DDExit() float64 {
	if h.DDPauseExit != nil {
		return *h.DDPauseExit
	}
	return math.Max(0, 0.8*h.DDPauseEnter)
}

type Smoothing struct {
	VolEMAAlpha float64 `yaml:"vol_ema_alpha"`
	PnLEMAAlpha float64 `yaml:"pnl_ema_alpha"`
}

type Budgets struct {
	MaxActionsPerHour int `yaml:"max_actions_per_hour"`
	MaxAdjustsPerHour int `yaml:"max_adjusts_per_hour"`
}

// Bounds caps a single parameter. A nil side is unbounded.
type Bounds struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// Clamp returns v limited to the configured bounds.
func (b Bounds) Clamp(v float64) float64 {
	if b.Min != nil && v < *b.Min {
		v = *b.Min
	}
	if b.Max != nil && v > *b.Max {
		v = *b.Max
	}
	return v
}

// ParamCaps maps side ("long"/"short") -> parameter name -> bounds.
type ParamCaps map[string]map[string]Bounds

// Lookup returns the bounds for side/param if any are configured.
func (c ParamCaps) Lookup(side, param string) (Bounds, bool) {
	if c == nil {
		return Bounds{}, false
	}
	b, ok := c[side][param]
	return b, ok
}

type SymbolOverride struct {
	ParamCaps ParamCaps `yaml:"param_caps"`
}

type Rescue struct {
	Enabled         bool    `yaml:"enabled"`
	TriggerLossPct  float64 `yaml:"trigger_loss_pct"`
	ReleaseLossPct  float64 `yaml:"release_loss_pct"`
	MaxVolMult      float64 `yaml:"max_vol_mult"`
	CloseGridQtyPct float64 `yaml:"close_grid_qty_pct"`
}

// Halt is either an absolute epoch window [start_ts, end_ts) or a recurring
// daily UTC window "HH:MM"-"HH:MM" with an optional weekday filter
// (Monday = 0 ... Sunday = 6). Daily windows may wrap past midnight.
type Halt struct {
	StartTS  *float64 `yaml:"start_ts"`
	EndTS    *float64 `yaml:"end_ts"`
	StartUTC string   `yaml:"start_utc"`
	EndUTC   string   `yaml:"end_utc"`
	Weekdays []int    `yaml:"weekdays"`
}

func (h Halt) Absolute() bool { return h.StartTS != nil && h.EndTS != nil }
func (h Halt) Daily() bool    { return h.StartUTC != "" && h.EndUTC != "" }

type Gates struct {
	MaxSpreadPct *float64 `yaml:"max_spread_pct"`
}

type Logging struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// AgentConfig is the immutable guardrail configuration.
type AgentConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // live | shadow | dry-run
	KillSwitch bool   `yaml:"kill_switch"`

	MaxDrawdownPct   float64 `yaml:"max_drawdown_pct"`
	MaxDailyLossPct  float64 `yaml:"max_daily_loss_pct"`
	MaxTradeLossPct  float64 `yaml:"max_trade_loss_pct"`
	VolatilityThresh float64 `yaml:"volatility_threshold"`

	MinIntervalSecs             float64 `yaml:"min_interval_secs"`
	CooldownSecsAfterForceClose float64 `yaml:"cooldown_secs_after_force_close"`
	CooldownSecsAfterAdjust     float64 `yaml:"cooldown_secs_after_adjust"`

	LosingStreakWindow     int     `yaml:"losing_streak_window"`
	LosingStreakAdjustment float64 `yaml:"losing_streak_adjustment"`

	Hysteresis      Hysteresis                `yaml:"hysteresis"`
	Smoothing       Smoothing                 `yaml:"smoothing"`
	Budgets         Budgets                   `yaml:"budgets"`
	ParamCaps       ParamCaps                 `yaml:"param_caps"`
	SymbolOverrides map[string]SymbolOverride `yaml:"symbol_overrides"`
	Rescue          Rescue                    `yaml:"rescue"`
	Halts           []Halt                    `yaml:"halts"`
	Gates           Gates                     `yaml:"gates"`

	AuditLogPath string  `yaml:"audit_log_path"`
	Logging      Logging `yaml:"logging"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() AgentConfig {
	return AgentConfig{
		Enabled:                     true,
		Mode:                        ModeLive,
		MaxDrawdownPct:              0.12,
		MaxDailyLossPct:             0.06,
		MaxTradeLossPct:             0.03,
		VolatilityThresh:            0.08,
		MinIntervalSecs:             5,
		CooldownSecsAfterForceClose: 120,
		CooldownSecsAfterAdjust:     60,
		LosingStreakWindow:          5,
		LosingStreakAdjustment:      0.2,
		Hysteresis: Hysteresis{
			VolatilityEnter: 0.08,
			DDPauseEnter:    0.12,
		},
		Smoothing: Smoothing{VolEMAAlpha: 0.2, PnLEMAAlpha: 0.15},
		Budgets:   Budgets{MaxActionsPerHour: 12, MaxAdjustsPerHour: 8},
		Rescue: Rescue{
			Enabled:         true,
			TriggerLossPct:  0.05,
			ReleaseLossPct:  0.02,
			MaxVolMult:      1.0,
			CloseGridQtyPct: 0.5,
		},
		AuditLogPath: "logs/guardrail_audit.jsonl",
		Logging:      Logging{Level: "info", Format: "json"},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (AgentConfig, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	if c.Mode == "" {
		c.Mode = ModeLive
	}
	if c.AuditLogPath == "" {
		c.AuditLogPath = Default().AuditLogPath
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the invariants the evaluator relies on.
func (c AgentConfig) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Mode {
	case ModeLive, ModeShadow, ModeDryRun:
	default:
		bad("mode %q not one of live, shadow, dry-run", c.Mode)
	}
	if c.Smoothing.VolEMAAlpha <= 0 || c.Smoothing.VolEMAAlpha > 1 {
		bad("smoothing.vol_ema_alpha %v outside (0,1]", c.Smoothing.VolEMAAlpha)
	}
	if c.Smoothing.PnLEMAAlpha <= 0 || c.Smoothing.PnLEMAAlpha > 1 {
		bad("smoothing.pnl_ema_alpha %v outside (0,1]", c.Smoothing.PnLEMAAlpha)
	}
	if c.Hysteresis.VolExit() > c.Hysteresis.VolatilityEnter {
		bad("hysteresis.volatility_exit %v above enter %v", c.Hysteresis.VolExit(), c.Hysteresis.VolatilityEnter)
	}
	if c.Hysteresis.DDExit() > c.Hysteresis.DDPauseEnter {
		bad("hysteresis.dd_pause_exit %v above enter %v", c.Hysteresis.DDExit(), c.Hysteresis.DDPauseEnter)
	}
	if c.Budgets.MaxActionsPerHour < 0 || c.Budgets.MaxAdjustsPerHour < 0 {
		bad("budgets must be non-negative")
	}
	if c.MinIntervalSecs < 0 || c.CooldownSecsAfterForceClose < 0 || c.CooldownSecsAfterAdjust < 0 {
		bad("intervals and cooldowns must be non-negative")
	}
	if c.LosingStreakWindow < 1 {
		bad("losing_streak_window %d must be at least 1", c.LosingStreakWindow)
	}
	if c.Rescue.ReleaseLossPct > c.Rescue.TriggerLossPct {
		bad("rescue.release_loss_pct %v above trigger %v", c.Rescue.ReleaseLossPct, c.Rescue.TriggerLossPct)
	}
	checkCaps := func(where string, caps ParamCaps) {
		for side, params := range caps {
			if side != "long" && side != "short" {
				bad("%s: unknown side %q", where, side)
			}
			for name, b := range params {
				if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
					bad("%s.%s.%s: min %v above max %v", where, side, name, *b.Min, *b.Max)
				}
			}
		}
	}
	checkCaps("param_caps", c.ParamCaps)
	for sym, ov := range c.SymbolOverrides {
		checkCaps("symbol_overrides."+sym+".param_caps", ov.ParamCaps)
	}
	for i, h := range c.Halts {
		if !h.Absolute() && !h.Daily() {
			bad("halts[%d]: needs start_ts/end_ts or start_utc/end_utc", i)
			continue
		}
		if h.Absolute() && *h.StartTS >= *h.EndTS {
			bad("halts[%d]: start_ts must precede end_ts", i)
		}
		if h.Daily() {
			if _, err := ClockMinutes(h.StartUTC); err != nil {
				bad("halts[%d].start_utc: %v", i, err)
			}
			if _, err := ClockMinutes(h.EndUTC); err != nil {
				bad("halts[%d].end_utc: %v", i, err)
			}
			for _, wd := range h.Weekdays {
				if wd < 0 || wd > 6 {
					bad("halts[%d]: weekday %d outside 0..6", i, wd)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// ClockMinutes parses "HH:MM" into minutes after midnight.
func ClockMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("time %q not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("hour in %q out of range", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("minute in %q out of range", s)
	}
	return h*60 + m, nil
}

func (c AgentConfig) Shadow() bool { return c.Mode == ModeShadow }
func (c AgentConfig) DryRun() bool { return c.Mode == ModeDryRun }

func (c AgentConfig) MinInterval() time.Duration { return seconds(c.MinIntervalSecs) }
func (c AgentConfig) ForceCloseCooldown() time.Duration {
	return seconds(c.CooldownSecsAfterForceClose)
}
func (c AgentConfig) AdjustCooldown() time.Duration { return seconds(c.CooldownSecsAfterAdjust) }

// SymbolCaps returns the override caps for a symbol, trying the exact symbol
// first and then its coin.
func (c AgentConfig) SymbolCaps(symbol, coin string) (ParamCaps, bool) {
	if ov, ok := c.SymbolOverrides[symbol]; ok {
		return ov.ParamCaps, true
	}
	if ov, ok := c.SymbolOverrides[coin]; ok {
		return ov.ParamCaps, true
	}
	return nil, false
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
