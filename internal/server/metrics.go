package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry     *prometheus.Registry
	actionsTotal *prometheus.CounterVec
	blockErrors  prometheus.Counter
}

func newMetricsRegistry(headBlock func() float64) *metricsRegistry {
	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redeemdesk_actions_total",
		Help: "Approve, redeem and collect commands by final status",
	}, []string{"action", "status"})

	blockErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redeemdesk_block_errors_total",
		Help: "Failed per-block evaluations",
	})

	head := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "redeemdesk_head_block",
		Help: "Most recent block number seen by the watcher",
	}, headBlock)

	r := prometheus.NewRegistry()
	r.MustRegister(actions, blockErrors, head)

	return &metricsRegistry{
		registry:     r,
		actionsTotal: actions,
		blockErrors:  blockErrors,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incAction(action, status string) {
	m.actionsTotal.WithLabelValues(action, status).Inc()
}

func (m *metricsRegistry) incBlockError() {
	m.blockErrors.Inc()
}
