package guard

import (
	"fmt"
	"strings"
)

// Side is a position side of a hedged grid strategy.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// ParseSide normalizes "LONG", "long", "buy" style inputs.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, true
	case "short", "sell":
		return Short, true
	}
	return "", false
}

// CoinSide keys per-position state such as rescue baselines.
type CoinSide struct {
	Coin string `json:"coin"`
	Side Side   `json:"side"`
}

func (k CoinSide) String() string { return k.Coin + "/" + string(k.Side) }

// ParamKind enumerates the strategy parameters the agent may write.
type ParamKind int

const (
	ParamGridSpacing      ParamKind = iota + 1 // <side>.grid_spacing_pct
	ParamPosSize                               // <side>.pos_size_pct
	ParamCloseGridQty                          // bot.<side>.close_grid_qty_pct
	ParamCoinCloseGridQty                      // coin_overrides.<coin>.bot.<side>.close_grid_qty_pct
)

// Param is a validated parameter target. Build it with the constructors below.
type Param struct {
	Kind ParamKind
	Side Side
	Coin string
}

func GridSpacing(side Side) Param  { return Param{Kind: ParamGridSpacing, Side: side} }
func PosSize(side Side) Param      { return Param{Kind: ParamPosSize, Side: side} }
func CloseGridQty(side Side) Param { return Param{Kind: ParamCloseGridQty, Side: side} }
func CoinCloseGridQty(coin string, side Side) Param {
	return Param{Kind: ParamCoinCloseGridQty, Side: side, Coin: coin}
}

// Valid reports whether the target is well formed.
func (p Param) Valid() bool {
	if p.Side != Long && p.Side != Short {
		return false
	}
	switch p.Kind {
	case ParamGridSpacing, ParamPosSize, ParamCloseGridQty:
		return p.Coin == ""
	case ParamCoinCloseGridQty:
		return p.Coin != ""
	}
	return false
}

// capName is the param_caps key for capped parameters, "" otherwise.
func (p Param) capName() string {
	switch p.Kind {
	case ParamGridSpacing:
		return "grid_spacing_pct"
	case ParamPosSize:
		return "pos_size_pct"
	}
	return ""
}

// String renders the dotted path used in audit records.
func (p Param) String() string {
	switch p.Kind {
	case ParamGridSpacing:
		return string(p.Side) + ".grid_spacing_pct"
	case ParamPosSize:
		return string(p.Side) + ".pos_size_pct"
	case ParamCloseGridQty:
		return "bot." + string(p.Side) + ".close_grid_qty_pct"
	case ParamCoinCloseGridQty:
		return fmt.Sprintf("coin_overrides.%s.bot.%s.close_grid_qty_pct", p.Coin, p.Side)
	}
	return fmt.Sprintf("unknown(%d)", int(p.Kind))
}

var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "FDUSD", "USD"}

// CoinOf strips the quote asset from an exchange symbol:
// "ETHUSDT", "ETH/USDT:USDT" and "ETH-USD" all map to "ETH".
func CoinOf(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "/-:"); i > 0 {
		return s[:i]
	}
	for _, q := range quoteSuffixes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return strings.TrimSuffix(s, q)
		}
	}
	return s
}
