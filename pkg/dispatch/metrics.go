package dispatch

import (
	"time"

	"github.com/keshon/switchboard/pkg/platform"
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes used as metric labels.
const (
	OutcomeDone         = "done"
	OutcomeHandlerError = "handler_error"
	OutcomeUnknown      = "unknown_command"
	OutcomeExpired      = "expired_component"
	OutcomeAbandoned    = "abandoned"
	OutcomeFailed       = "failed"
)

// metrics is nil-safe: an engine without a Registerer records nothing.
type metrics struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	chainDepth prometheus.Histogram
	bindings   prometheus.GaugeFunc
}

func newMetrics(reg prometheus.Registerer, bindings func() float64) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_dispatches_total",
			Help: "Interaction events dispatched, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchboard_dispatch_duration_seconds",
			Help:    "Time from receiving an event to the end of its chain.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		chainDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "switchboard_chain_length",
			Help:    "Handlers run per dispatch, the first one included.",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
		bindings: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "switchboard_component_bindings",
			Help: "Live component bindings.",
		}, bindings),
	}
	for _, c := range []prometheus.Collector{m.dispatches, m.duration, m.chainDepth, m.bindings} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observe(kind platform.EventKind, outcome string, links int, started time.Time) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(kind.String(), outcome).Inc()
	m.duration.WithLabelValues(kind.String()).Observe(time.Since(started).Seconds())
	if links > 0 {
		m.chainDepth.Observe(float64(links))
	}
}
