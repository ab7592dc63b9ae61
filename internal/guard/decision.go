package guard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Adjustment is one proposed parameter write.
type Adjustment struct {
	Param Param
	Value float64
}

// Adjustments keeps proposal order; a later write to the same Param replaces
// the earlier value in place.
type Adjustments []Adjustment

func (a *Adjustments) Set(p Param, v float64) {
	for i := range *a {
		if (*a)[i].Param == p {
			(*a)[i].Value = v
			return
		}
	}
	*a = append(*a, Adjustment{Param: p, Value: v})
}

func (a Adjustments) Get(p Param) (float64, bool) {
	for _, adj := range a {
		if adj.Param == p {
			return adj.Value, true
		}
	}
	return 0, false
}

// MarshalJSON renders {"long.grid_spacing_pct": 0.016, ...} in proposal order.
func (a Adjustments) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, adj := range a {
		if math.IsNaN(adj.Value) || math.IsInf(adj.Value, 0) {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(adj.Param.String())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(adj.Value, 'g', -1, 64))
		n++
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the object form written by MarshalJSON. Key order of
// the input is not preserved.
func (a *Adjustments) UnmarshalJSON(b []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Adjustments, 0, len(raw))
	for path, v := range raw {
		p, err := ParseParam(path)
		if err != nil {
			return err
		}
		out.Set(p, v)
	}
	*a = out
	return nil
}

// ParseParam is the inverse of Param.String.
func ParseParam(path string) (Param, error) {
	parts := strings.Split(path, ".")
	var p Param
	switch {
	case len(parts) == 2 && parts[1] == "grid_spacing_pct":
		p = GridSpacing(Side(parts[0]))
	case len(parts) == 2 && parts[1] == "pos_size_pct":
		p = PosSize(Side(parts[0]))
	case len(parts) == 3 && parts[0] == "bot" && parts[2] == "close_grid_qty_pct":
		p = CloseGridQty(Side(parts[1]))
	case len(parts) == 5 && parts[0] == "coin_overrides" && parts[2] == "bot" && parts[4] == "close_grid_qty_pct":
		p = CoinCloseGridQty(parts[1], Side(parts[3]))
	}
	if !p.Valid() {
		return Param{}, fmt.Errorf("%w: %q", ErrUnknownParam, path)
	}
	return p, nil
}

// RescuePlan lists the coin/sides entering and leaving rescue this tick.
type RescuePlan struct {
	Engage  []CoinSide `json:"engage"`
	Release []CoinSide `json:"release"`
}

// MarshalJSON always writes both lists, empty ones as [].
func (r RescuePlan) MarshalJSON() ([]byte, error) {
	type plan RescuePlan
	out := plan(r)
	if out.Engage == nil {
		out.Engage = []CoinSide{}
	}
	if out.Release == nil {
		out.Release = []CoinSide{}
	}
	return json.Marshal(out)
}

func (r *RescuePlan) empty() bool {
	return r == nil || (len(r.Engage) == 0 && len(r.Release) == 0)
}

// Decision is the per-tick protective verdict.
type Decision struct {
	PauseBot   string      `json:"pause_bot,omitempty"`
	BlockEntry bool        `json:"block_entry,omitempty"`
	ForceClose bool        `json:"force_close,omitempty"`
	Adjust     Adjustments `json:"adjust,omitempty"`
	Rescue     *RescuePlan `json:"rescue,omitempty"`
	Info       string      `json:"info,omitempty"`

	// AffectedSymbol names the symbol behind a streak adjustment. It only
	// leaves the process as the audit record's symbol.
	AffectedSymbol string `json:"-"`
}

func (d Decision) IsEmpty() bool {
	return !d.Acts() && d.Info == ""
}

// Acts reports whether applying the decision would touch the host.
func (d Decision) Acts() bool {
	return d.PauseBot != "" || d.BlockEntry || d.ForceClose || d.HasAdjust()
}

func (d Decision) HasAdjust() bool {
	return len(d.Adjust) > 0 || !d.Rescue.empty()
}

// Kinds lists the action kinds present, used for metric labels.
func (d Decision) Kinds() []string {
	var kinds []string
	if d.PauseBot != "" {
		kinds = append(kinds, "pause")
	}
	if d.BlockEntry {
		kinds = append(kinds, "block")
	}
	if d.ForceClose {
		kinds = append(kinds, "force_close")
	}
	if len(d.Adjust) > 0 {
		kinds = append(kinds, "adjust")
	}
	if !d.Rescue.empty() {
		kinds = append(kinds, "rescue")
	}
	if len(kinds) == 0 && d.Info != "" {
		kinds = append(kinds, "info")
	}
	return kinds
}
