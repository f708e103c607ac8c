package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени занял один тик (решения + политика + коммит)
	TickDuration *prometheus.HistogramVec

	// Traffic: продвинутые тики и собранные решения
	TicksTotal     *prometheus.CounterVec
	DecisionsTotal *prometheus.CounterVec

	// Исходы политики: approve / deny / escalate
	PolicyOutcomes *prometheus.CounterVec

	// Saturation: сколько заявок висит в HITL-очереди
	ApprovalsPending *prometheus.GaugeVec

	// Audit: записей журнала закоммичено
	AuditEntriesTotal *prometheus.CounterVec

	// Деградации провайдера решений (таймаут/ошибка, роль промолчала)
	ProviderDegraded *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TickDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corpsim_tick_duration_seconds",
			Help:    "Histogram of tick processing latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"run_id"}),

		TicksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "corpsim_ticks_total",
			Help: "Total number of advanced ticks.",
		}, []string{"run_id"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "corpsim_decisions_total",
			Help: "Total number of collected agent decisions.",
		}, []string{"run_id", "agent_role"}),

		PolicyOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "corpsim_policy_outcomes_total",
			Help: "Policy verdicts by outcome.",
		}, []string{"run_id", "decision"}), // approve, deny, escalate

		ApprovalsPending: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "corpsim_approvals_pending",
			Help: "Current number of unresolved approval requests.",
		}, []string{"run_id"}),

		AuditEntriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "corpsim_audit_entries_total",
			Help: "Total number of committed audit entries.",
		}, []string{"run_id"}),

		ProviderDegraded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "corpsim_provider_degraded_total",
			Help: "Decision provider failures degraded to no-op.",
		}, []string{"run_id", "agent_role"}),
	}
}
