// Package audit stores guardrail decisions as newline-delimited JSON.
package audit

import (
	"encoding/json"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmpty means the log held no usable records.
var ErrEmpty = errors.New("audit log has no records")

// Filters is the smoothed-signal snapshot taken when a decision was made.
type Filters struct {
	VolEMA  *float64 `json:"vol_ema"`
	UpnlEMA *float64 `json:"upnl_ema"`
}

// Record is one audit line.
type Record struct {
	ID               string          `json:"id,omitempty"`
	TS               float64         `json:"ts"`
	Symbol           string          `json:"symbol"`
	Equity           float64         `json:"equity"`
	UnrealizedPnLPct float64         `json:"unrealized_pnl_pct"`
	Volatility       *float64        `json:"volatility"`
	LosingStreak     int             `json:"losing_streak"`
	Decision         json.RawMessage `json:"decision"`
	Mode             string          `json:"mode"`
	Filters          Filters         `json:"filters"`
}

// DecisionView is the loosely typed shape analysis code reads back.
type DecisionView struct {
	PauseBot   string             `json:"pause_bot"`
	BlockEntry bool               `json:"block_entry"`
	ForceClose bool               `json:"force_close"`
	Adjust     map[string]float64 `json:"adjust"`
	Rescue     json.RawMessage    `json:"rescue"`
	Info       string             `json:"info"`
}

// View decodes the stored decision. Malformed decisions yield a zero view.
func (r Record) View() DecisionView {
	var v DecisionView
	if len(r.Decision) > 0 {
		_ = jsonAPI.Unmarshal(r.Decision, &v)
	}
	return v
}

// Sink receives audit records.
type Sink interface {
	Append(rec Record) error
}

// Memory is an in-process Sink.
type Memory struct {
	Records []Record
	Err     error
}

func (m *Memory) Append(rec Record) error {
	if m.Err != nil {
		return m.Err
	}
	m.Records = append(m.Records, rec)
	return nil
}
