// Package metrics exposes prometheus counters for read and write cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the collectors of one daemon instance on a private registry.
type Metrics struct {
	PollsTotal          *prometheus.CounterVec
	PollDuration        *prometheus.HistogramVec
	WritesTotal         *prometheus.CounterVec
	ExtractionErrors    *prometheus.CounterVec
	DevicesOnline       prometheus.Gauge
	SamplesPersisted    prometheus.Counter
	SamplePersistErrors prometheus.Counter

	httphandler http.Handler
}

// New creates and registers every collector. Names are prefixed with prefix.
func New(prefix string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		httphandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),

		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_polls_total",
			Help: "count of read cycles by device and result",
		}, []string{"device_id", "result"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_poll_duration_seconds",
			Help:    "duration of read cycles",
			Buckets: prometheus.DefBuckets,
		}, []string{"device_id"}),
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_writes_total",
			Help: "count of port writes by device, port and result",
		}, []string{"device_id", "port_id", "result"}),
		ExtractionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_extraction_errors_total",
			Help: "count of read rules that did not resolve against the response",
		}, []string{"device_id", "port_id"}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_devices_online",
			Help: "number of devices currently considered online",
		}),
		SamplesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_samples_persisted_total",
			Help: "count of port samples written to the history store",
		}),
		SamplePersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_sample_persist_errors_total",
			Help: "count of failed history batch inserts",
		}),
	}

	reg.MustRegister(
		m.PollsTotal,
		m.PollDuration,
		m.WritesTotal,
		m.ExtractionErrors,
		m.DevicesOnline,
		m.SamplesPersisted,
		m.SamplePersistErrors,
	)
	return m
}

// ObservePoll records the outcome of one read cycle. Nil receivers are ignored.
func (m *Metrics) ObservePoll(deviceID string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(deviceID, result(err)).Inc()
	m.PollDuration.WithLabelValues(deviceID).Observe(d.Seconds())
}

// ObserveWrite records the outcome of one port write.
func (m *Metrics) ObserveWrite(deviceID, portID string, err error) {
	if m == nil {
		return
	}
	m.WritesTotal.WithLabelValues(deviceID, portID, result(err)).Inc()
}

// ObserveExtractionError counts a read rule that did not resolve.
func (m *Metrics) ObserveExtractionError(deviceID, portID string) {
	if m == nil {
		return
	}
	m.ExtractionErrors.WithLabelValues(deviceID, portID).Inc()
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.httphandler.ServeHTTP(w, r)
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
