package guard

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/guardrail-agent/internal/config"
)

func f(v float64) *float64 { return &v }

func TestCoinOf(t *testing.T) {
	testCases := map[string]string{
		"ETHUSDT":       "ETH",
		"ETH/USDT:USDT": "ETH",
		"eth-usd":       "ETH",
		"BTCUSDC":       "BTC",
		"SOL":           "SOL",
		"":              "",
	}
	for in, want := range testCases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, CoinOf(in))
		})
	}
}

func TestParam_StringRoundTrip(t *testing.T) {
	params := []Param{
		GridSpacing(Long),
		PosSize(Short),
		CloseGridQty(Long),
		CoinCloseGridQty("ETH", Short),
	}
	for _, p := range params {
		t.Run(p.String(), func(t *testing.T) {
			require.True(t, p.Valid())
			back, err := ParseParam(p.String())
			require.NoError(t, err)
			assert.Equal(t, p, back)
		})
	}

	assert.Equal(t, "coin_overrides.ETH.bot.short.close_grid_qty_pct", CoinCloseGridQty("ETH", Short).String())
	_, err := ParseParam("live.forced_mode_long")
	assert.ErrorIs(t, err, ErrUnknownParam)
	assert.False(t, GridSpacing("both").Valid())
}

func TestAdjustments_OrderAndOverwrite(t *testing.T) {
	var a Adjustments
	a.Set(GridSpacing(Long), 0.016)
	a.Set(CoinCloseGridQty("BTC", Long), 0.5)
	a.Set(GridSpacing(Long), 0.012)

	require.Len(t, a, 2)
	v, ok := a.Get(GridSpacing(Long))
	require.True(t, ok)
	assert.Equal(t, 0.012, v)

	b, err := json.Marshal(Decision{BlockEntry: true, Adjust: a, AffectedSymbol: "ETH"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"block_entry":true,"adjust":{"long.grid_spacing_pct":0.012,"coin_overrides.BTC.bot.long.close_grid_qty_pct":0.5}}`, string(b))

	var back Decision
	require.NoError(t, json.Unmarshal(b, &back))
	v, ok = back.Adjust.Get(CoinCloseGridQty("BTC", Long))
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
}

func TestDecision_Predicates(t *testing.T) {
	assert.True(t, Decision{}.IsEmpty())
	assert.False(t, Decision{Info: InfoCooldown}.IsEmpty())
	assert.False(t, Decision{Info: InfoCooldown}.Acts())
	assert.True(t, Decision{Rescue: &RescuePlan{Release: []CoinSide{{"BTC", Long}}}}.HasAdjust())
	assert.False(t, Decision{Rescue: &RescuePlan{}}.HasAdjust())
	assert.Equal(t, []string{"pause", "force_close"}, Decision{PauseBot: "x", ForceClose: true}.Kinds())
}

func TestRescuePlan_AlwaysWritesLists(t *testing.T) {
	b, err := json.Marshal(Decision{Rescue: &RescuePlan{Release: []CoinSide{{"BTC", Long}}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rescue":{"engage":[],"release":[{"coin":"BTC","side":"long"}]}}`, string(b))

	var back Decision
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Rescue)
	assert.Equal(t, []CoinSide{{"BTC", Long}}, back.Rescue.Release)
	assert.Empty(t, back.Rescue.Engage)
}

func TestEMA(t *testing.T) {
	seq := []*float64{f(0.1), nil, f(0.2), f(0.05)}
	run := func() []float64 {
		var prev *float64
		var out []float64
		for _, v := range seq {
			prev = EMA(prev, v, 0.2)
			out = append(out, *prev)
		}
		return out
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Equal(t, 0.1, first[0])
	assert.Equal(t, first[0], first[1], "absent value keeps prev")
	assert.InDelta(t, 0.12, first[2], 1e-12)
	assert.InDelta(t, 0.106, first[3], 1e-12)

	nan := math.NaN()
	assert.Equal(t, 0.3, *EMA(f(0.3), &nan, 0.5))
	assert.Nil(t, EMA(nil, nil, 0.5))
}

func TestInHalt(t *testing.T) {
	// 2024-01-04 is a Thursday (weekday 3 with Monday = 0).
	thu2330 := time.Date(2024, 1, 4, 23, 30, 0, 0, time.UTC)
	fri0130 := time.Date(2024, 1, 5, 1, 30, 0, 0, time.UTC)
	fri0300 := time.Date(2024, 1, 5, 3, 0, 0, 0, time.UTC)

	wrap := config.Halt{StartUTC: "22:00", EndUTC: "02:00"}
	wrapThu := config.Halt{StartUTC: "22:00", EndUTC: "02:00", Weekdays: []int{3}}
	abs := config.Halt{StartTS: f(float64(thu2330.Unix())), EndTS: f(float64(thu2330.Unix() + 60))}
	mixed := config.Halt{
		StartTS:  f(float64(fri0300.Unix())),
		EndTS:    f(float64(fri0300.Unix() + 60)),
		StartUTC: "22:00",
		EndUTC:   "02:00",
	}

	testCases := []struct {
		name  string
		halts []config.Halt
		now   time.Time
		want  bool
	}{
		{"wrap_before_midnight", []config.Halt{wrap}, thu2330, true},
		{"wrap_after_midnight", []config.Halt{wrap}, fri0130, true},
		{"wrap_outside", []config.Halt{wrap}, fri0300, false},
		{"weekday_match", []config.Halt{wrapThu}, thu2330, true},
		{"weekday_mismatch", []config.Halt{wrapThu}, fri0130, false},
		{"absolute_start_inclusive", []config.Halt{abs}, thu2330, true},
		{"absolute_end_exclusive", []config.Halt{abs}, thu2330.Add(time.Minute), false},
		{"mixed_daily_part", []config.Halt{mixed}, thu2330, true},
		{"mixed_absolute_part", []config.Halt{mixed}, fri0300, true},
		{"mixed_outside", []config.Halt{mixed}, fri0300.Add(time.Hour), false},
		{"none", nil, thu2330, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, inHalt(tc.halts, tc.now))
		})
	}
}

func TestBudget_HourRollover(t *testing.T) {
	var b budget
	caps := config.Budgets{MaxActionsPerHour: 1, MaxAdjustsPerHour: 1}
	t0 := time.Unix(1_700_000_000-1_700_000_000%3600+600, 0)

	b.roll(t0)
	b.record(true)
	d, hit := b.limit(Decision{BlockEntry: true}, caps)
	assert.Equal(t, "action", hit)
	assert.Equal(t, Decision{Info: InfoBudgetActionLimit}, d)

	b.roll(t0.Add(time.Hour))
	assert.Zero(t, b.actions)
	assert.Zero(t, b.adjusts)
	d, hit = b.limit(Decision{BlockEntry: true}, caps)
	assert.Empty(t, hit)
	assert.True(t, d.BlockEntry)
}

func TestBudget_AdjustStripKeepsOtherActions(t *testing.T) {
	var b budget
	var adj Adjustments
	adj.Set(GridSpacing(Long), 0.016)
	in := Decision{BlockEntry: true, Adjust: adj, Rescue: &RescuePlan{Engage: []CoinSide{{"BTC", Long}}}}

	d, hit := b.limit(in, config.Budgets{MaxActionsPerHour: 5, MaxAdjustsPerHour: 0})
	assert.Equal(t, "adjust", hit)
	assert.True(t, d.BlockEntry)
	assert.Empty(t, d.Adjust)
	assert.Nil(t, d.Rescue)
	assert.Equal(t, InfoBudgetAdjustLimit, d.Info)
}

func TestLosingStreak(t *testing.T) {
	loss := func(sym string) ClosedTrade { return ClosedTrade{Symbol: sym, PnLPct: -0.01} }
	win := func(sym string) ClosedTrade { return ClosedTrade{Symbol: sym, PnLPct: 0.01} }

	testCases := []struct {
		name   string
		trades []ClosedTrade
		window int
		want   string
	}{
		{"five_losses", []ClosedTrade{loss("ETH"), loss("ETH"), loss("ETH"), loss("ETH"), loss("ETH")}, 5, "ETH"},
		{"broken_by_win", []ClosedTrade{loss("ETH"), loss("ETH"), win("ETH"), loss("ETH"), loss("ETH")}, 5, ""},
		{"too_few", []ClosedTrade{loss("ETH"), loss("ETH")}, 3, ""},
		{"missing_symbol_is_multi", []ClosedTrade{loss(""), loss("")}, 2, "multi"},
		{"first_appearance_wins", []ClosedTrade{loss("BTC"), loss("ETH"), loss("BTC"), loss("ETH")}, 2, "BTC"},
		{"only_last_ten", []ClosedTrade{
			loss("SOL"), loss("SOL"),
			win("ETH"), win("ETH"), win("ETH"), win("ETH"), win("ETH"),
			win("ETH"), win("ETH"), win("ETH"), win("ETH"), loss("SOL"),
		}, 2, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sym, _ := losingStreak(tc.trades, tc.window)
			assert.Equal(t, tc.want, sym)
		})
	}
}

func TestSnapshot_SpreadFallback(t *testing.T) {
	s := Snapshot{Market: &Market{SpreadPct: f(0.003)}}
	require.NotNil(t, s.spread())
	assert.Equal(t, 0.003, *s.spread())

	s.SpreadPct = f(0.001)
	assert.Equal(t, 0.001, *s.spread())

	var decoded Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"account":{"balance":100,"unrealized_pnl_pct":-0.1},"open_positions":[{"symbol":"BTCUSDT","position_side":"LONG","size":2,"upnl_pct":-0.06}]}`), &decoded))
	assert.InDelta(t, 90.0, decoded.equity(), 1e-9)
	order, idx := positionsByCoinSide(decoded.OpenPositions)
	require.Equal(t, []CoinSide{{"BTC", Long}}, order)
	assert.Equal(t, -0.06, idx[order[0]].upnl)
}
