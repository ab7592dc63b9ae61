package guard

// EMA folds value into prev with weight alpha. An absent value keeps prev;
// an absent prev starts at value.
func EMA(prev, value *float64, alpha float64) *float64 {
	value = finite(value)
	if value == nil {
		return prev
	}
	if prev == nil {
		v := *value
		return &v
	}
	v := alpha*(*value) + (1-alpha)*(*prev)
	return &v
}

// FilterState holds the smoothed signals.
type FilterState struct {
	VolEMA  *float64 `json:"vol_ema"`
	UpnlEMA *float64 `json:"upnl_ema"`
}

func (f *FilterState) update(s Snapshot, volAlpha, pnlAlpha float64) {
	f.VolEMA = EMA(f.VolEMA, s.Volatility, volAlpha)
	upnl := num(s.Account.UnrealizedPnLPct)
	f.UpnlEMA = EMA(f.UpnlEMA, &upnl, pnlAlpha)
}

func (f *FilterState) Reset() { *f = FilterState{} }
