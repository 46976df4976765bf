package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Totals is an aggregate snapshot of buffer counters and gauges across all
// streams, provided by the service at scrape time.
type Totals struct {
	GroupsEvicted  uint64
	FramesEvicted  uint64
	EventsEvicted  uint64
	ResidentGroups int
	ResidentFrames int
	Streams        int
}

// Metrics holds Prometheus collectors for the pre-roll buffer service.
// Engine-owned monotonic totals (evictions) are read from the service at
// scrape time via CounterFunc; request-path counters are incremented by the
// handlers and middleware.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     prometheus.Counter
	framesAdmitted    prometheus.Counter
	flushSignalsTotal prometheus.Counter
	rearmSignalsTotal prometheus.Counter
	errorsTotal       prometheus.Counter
}

// New creates and registers Prometheus collectors. totals is called at each
// scrape to read the engine-owned counters and resident gauges; it may not
// be nil.
func New(totals func() Totals) *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preroll_requests_total",
		Help: "Total number of HTTP requests received",
	})
	framesAdmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preroll_frames_admitted_total",
		Help: "Total number of frames accepted for buffering or pass-through",
	})
	flushSignalsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preroll_flush_signals_total",
		Help: "Total number of accepted flush triggers",
	})
	rearmSignalsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preroll_rearm_signals_total",
		Help: "Total number of accepted re-arm signals",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preroll_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		framesAdmitted,
		flushSignalsTotal,
		rearmSignalsTotal,
		errorsTotal,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "preroll_groups_evicted_total",
			Help: "Total number of groups evicted by the pruning policy",
		}, func() float64 { return float64(totals().GroupsEvicted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "preroll_frames_evicted_total",
			Help: "Total number of frames evicted by the pruning policy",
		}, func() float64 { return float64(totals().FramesEvicted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "preroll_events_evicted_total",
			Help: "Total number of control events evicted by the pruning policy",
		}, func() float64 { return float64(totals().EventsEvicted) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "preroll_resident_groups",
			Help: "Number of groups currently resident across all streams",
		}, func() float64 { return float64(totals().ResidentGroups) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "preroll_resident_frames",
			Help: "Number of frames currently resident across all streams",
		}, func() float64 { return float64(totals().ResidentFrames) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "preroll_streams",
			Help: "Number of streams known to the service",
		}, func() float64 { return float64(totals().Streams) }),
	)

	return &Metrics{
		registry:          registry,
		requestsTotal:     requestsTotal,
		framesAdmitted:    framesAdmitted,
		flushSignalsTotal: flushSignalsTotal,
		rearmSignalsTotal: rearmSignalsTotal,
		errorsTotal:       errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncFramesAdmitted increments the admitted frame counter.
func (m *Metrics) IncFramesAdmitted() {
	m.framesAdmitted.Inc()
}

// IncFlushes increments the accepted flush counter.
func (m *Metrics) IncFlushes() {
	m.flushSignalsTotal.Inc()
}

// IncRearms increments the accepted re-arm counter.
func (m *Metrics) IncRearms() {
	m.rearmSignalsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
