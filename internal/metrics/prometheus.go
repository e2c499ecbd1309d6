package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cardrelay/middleman"
)

var (
	descSessionsActive = prometheus.NewDesc("cardrelay_sessions_active",
		"Relay sessions currently running.", nil, nil)
	descSessionsTotal = prometheus.NewDesc("cardrelay_sessions_total",
		"Relay sessions started.", nil, nil)
	descPDUs = prometheus.NewDesc("cardrelay_pdus_total",
		"PDUs relayed, by direction.", []string{"direction"}, nil)
	descBytes = prometheus.NewDesc("cardrelay_pdu_bytes_total",
		"PDU bytes relayed, by direction.", []string{"direction"}, nil)
	descControls = prometheus.NewDesc("cardrelay_controls_total",
		"Reader control messages relayed.", nil, nil)
	descReconnects = prometheus.NewDesc("cardrelay_reader_reconnects_total",
		"Reader dials that succeeded after the reader had been unavailable.", nil, nil)
	descErrors = prometheus.NewDesc("cardrelay_errors_total",
		"Errors that ended a relay session.", nil, nil)
)

// NewRegistry creates a Prometheus registry with the Go runtime and
// process collectors registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Register exposes c through r.
func (c *Collector) Register(r prometheus.Registerer) error {
	return r.Register(c)
}

// Handler returns the Prometheus HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSessionsActive
	ch <- descSessionsTotal
	ch <- descPDUs
	ch <- descBytes
	ch <- descControls
	ch <- descReconnects
	ch <- descErrors
}

// Collect implements prometheus.Collector, reading the atomic counters
// at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descSessionsActive, prometheus.GaugeValue, float64(c.ActiveSessions()))
	ch <- prometheus.MustNewConstMetric(descSessionsTotal, prometheus.CounterValue, float64(c.TotalSessions()))
	for _, dir := range []middleman.Direction{middleman.In, middleman.Out} {
		label := dir.String()
		ch <- prometheus.MustNewConstMetric(descPDUs, prometheus.CounterValue, float64(c.PDUs(dir)), label)
		ch <- prometheus.MustNewConstMetric(descBytes, prometheus.CounterValue, float64(c.Bytes(dir)), label)
	}
	ch <- prometheus.MustNewConstMetric(descControls, prometheus.CounterValue, float64(c.Controls()))
	ch <- prometheus.MustNewConstMetric(descReconnects, prometheus.CounterValue, float64(c.ReaderReconnects()))
	ch <- prometheus.MustNewConstMetric(descErrors, prometheus.CounterValue, float64(c.ErrorCount()))
}

var _ prometheus.Collector = (*Collector)(nil)
