package guard

import "math"

// Snapshot is the per-tick view of the account and market handed in by the host.
type Snapshot struct {
	Account       Account       `json:"account"`
	Volatility    *float64      `json:"volatility,omitempty"`
	SpreadPct     *float64      `json:"spread_pct,omitempty"`
	Market        *Market       `json:"market,omitempty"`
	OpenPositions []Position    `json:"open_positions"`
	ClosedTrades  []ClosedTrade `json:"closed_trades"` // oldest..newest
	LiveConfig    *LiveConfig   `json:"live_config,omitempty"`
}

type Account struct {
	Balance             float64  `json:"balance"`
	UnrealizedPnLPct    float64  `json:"unrealized_pnl_pct"`
	RealizedPnLPctToday *float64 `json:"realized_pnl_pct_today,omitempty"`
}

type Market struct {
	SpreadPct *float64 `json:"spread_pct,omitempty"`
}

type Position struct {
	Symbol       string  `json:"symbol"`
	PositionSide string  `json:"position_side"`
	Size         float64 `json:"size"`
	UpnlPct      float64 `json:"upnl_pct"`
}

type ClosedTrade struct {
	Symbol string  `json:"symbol"`
	PnLPct float64 `json:"pnl_pct"`
}

type LiveConfig struct {
	Long  SideParams `json:"long"`
	Short SideParams `json:"short"`
}

type SideParams struct {
	GridSpacingPct *float64 `json:"grid_spacing_pct,omitempty"`
}

// finite drops NaN and infinities, which count as absent input.
func finite(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return p
}

// num reads a required field, defaulting malformed values to 0.
func num(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (s Snapshot) spread() *float64 {
	if p := finite(s.SpreadPct); p != nil {
		return p
	}
	if s.Market != nil {
		return finite(s.Market.SpreadPct)
	}
	return nil
}

func (s Snapshot) equity() float64 {
	return num(s.Account.Balance) * (1 + num(s.Account.UnrealizedPnLPct))
}

func (s Snapshot) liveSpacing(side Side) *float64 {
	if s.LiveConfig == nil {
		return nil
	}
	if side == Long {
		return finite(s.LiveConfig.Long.GridSpacingPct)
	}
	return finite(s.LiveConfig.Short.GridSpacingPct)
}

type positionMeta struct {
	upnl float64
	size float64
}

// positionsByCoinSide indexes open positions; later duplicates win.
func positionsByCoinSide(positions []Position) ([]CoinSide, map[CoinSide]positionMeta) {
	order := make([]CoinSide, 0, len(positions))
	index := make(map[CoinSide]positionMeta, len(positions))
	for _, p := range positions {
		coin := CoinOf(p.Symbol)
		side, ok := ParseSide(p.PositionSide)
		if coin == "" || !ok {
			continue
		}
		key := CoinSide{Coin: coin, Side: side}
		if _, seen := index[key]; !seen {
			order = append(order, key)
		}
		index[key] = positionMeta{upnl: num(p.UpnlPct), size: num(p.Size)}
	}
	return order, index
}
