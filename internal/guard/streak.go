package guard

// streakLookback bounds how many recent closed trades feed the streak check.
const streakLookback = 10

// losingStreak finds the first symbol, in order of first appearance among the
// last trades, whose most recent window trades are all losses.
func losingStreak(trades []ClosedTrade, window int) (symbol string, length int) {
	if window < 1 {
		return "", 0
	}
	if len(trades) > streakLookback {
		trades = trades[len(trades)-streakLookback:]
	}
	var order []string
	bySymbol := make(map[string][]float64)
	for _, ct := range trades {
		sym := ct.Symbol
		if sym == "" {
			sym = "multi"
		}
		if _, ok := bySymbol[sym]; !ok {
			order = append(order, sym)
		}
		bySymbol[sym] = append(bySymbol[sym], num(ct.PnLPct))
	}
	for _, sym := range order {
		pnls := bySymbol[sym]
		if len(pnls) < window {
			continue
		}
		losing := true
		for _, p := range pnls[len(pnls)-window:] {
			if p >= 0 {
				losing = false
				break
			}
		}
		if losing {
			return sym, window
		}
	}
	return "", 0
}
