package observ

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every guardrail collector. Hosts mount Handler() or gather
// it into their own registry.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// DecisionsTotal counts non-empty decisions by kind
// (pause, block, force_close, adjust, rescue, info).
var DecisionsTotal = factory.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "guardrail",
		Name:      "decisions_total",
		Help:      "Non-empty guardrail decisions by kind",
	},
	[]string{"kind"},
)

// BudgetSkipsTotal counts decisions downgraded by the hourly budgets.
var BudgetSkipsTotal = factory.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "guardrail",
		Name:      "budget_skips_total",
		Help:      "Decisions voided or stripped by the hourly action budgets",
	},
	[]string{"limit"}, // action, adjust
)

// StepFailuresTotal counts apply/resume steps that failed inside a tick.
var StepFailuresTotal = factory.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "guardrail",
		Name:      "step_failures_total",
		Help:      "Tick steps that failed and were absorbed",
	},
	[]string{"step"},
)

var AuditWriteErrorsTotal = factory.NewCounter(
	prometheus.CounterOpts{
		Namespace: "guardrail",
		Name:      "audit_write_errors_total",
		Help:      "Audit log appends that failed",
	},
)

var VolEMA = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "guardrail",
	Name:      "vol_ema",
	Help:      "Smoothed volatility",
})

var UpnlEMA = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "guardrail",
	Name:      "upnl_ema",
	Help:      "Smoothed account unrealized PnL ratio",
})

var DrawdownRatio = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "guardrail",
	Name:      "drawdown_ratio",
	Help:      "Session drawdown from peak equity",
})

// Latch reports 1 while a guardrail latch is set
// (blocking_due_to_vol, paused_due_to_dd, paused_due_to_daily).
var Latch = factory.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "guardrail",
		Name:      "latch",
		Help:      "Guardrail latch state (1 = set)",
	},
	[]string{"name"},
)

var ActionsThisHour = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "guardrail",
	Name:      "actions_this_hour",
	Help:      "Realized actions in the current hour window",
})

var AdjustsThisHour = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "guardrail",
	Name:      "adjusts_this_hour",
	Help:      "Realized parameter adjustments in the current hour window",
})

var RescueActive = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "guardrail",
	Name:      "rescue_active",
	Help:      "Coin/side pairs currently held in rescue mode",
})

// Handler serves the guardrail registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// BoolGauge maps a latch to 0/1.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
