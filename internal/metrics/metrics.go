// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labware-service/internal/model"
)

// StatsSource reports the connection counters of every configured device
type StatsSource func() map[string]model.ConnectionStats

// Metrics holds the service collectors on a private registry. It observes
// every executed command and every background task result.
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	TaskResults     *prometheus.CounterVec
	DeviceConnected *prometheus.GaugeVec
	ConnectErrors   *prometheus.CounterVec
}

// New creates and registers the collectors under namespace
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "labware"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "commands_total",
				Help:      "Total number of device commands by outcome",
			},
			[]string{"device", "command", "status"},
		),

		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "command_duration_seconds",
				Help:      "Device command round trip in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"device", "command"},
		),

		TaskResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "results_total",
				Help:      "Total number of results produced by background tasks",
			},
			[]string{"device", "command"},
		),

		DeviceConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "connected",
				Help:      "Device connection status (0=disconnected, 1=connected)",
			},
			[]string{"device"},
		),

		ConnectErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "connect_errors_total",
				Help:      "Total number of failed connection attempts",
			},
			[]string{"device"},
		),
	}

	m.registry.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.TaskResults,
		m.DeviceConnected,
		m.ConnectErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one executed command
func (m *Metrics) ObserveCommand(rec model.CommandRecord) {
	m.CommandsTotal.WithLabelValues(rec.Device, rec.Command, string(rec.Status)).Inc()
	if rec.Status != model.CommandStatusRejected {
		d := time.Duration(rec.DurationMs) * time.Millisecond
		m.CommandDuration.WithLabelValues(rec.Device, rec.Command).Observe(d.Seconds())
	}
}

// Publish counts one background task result
func (m *Metrics) Publish(result model.TaskResult) {
	m.TaskResults.WithLabelValues(result.Device, result.Command).Inc()
}

// RecordConnection updates the connection gauge of a device
func (m *Metrics) RecordConnection(device string, connected bool, err error) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.DeviceConnected.WithLabelValues(device).Set(value)
	if err != nil {
		m.ConnectErrors.WithLabelValues(device).Inc()
	}
}

// WatchConnections registers a collector reading transport counters from
// source at scrape time
func (m *Metrics) WatchConnections(namespace string, source StatsSource) error {
	if namespace == "" {
		namespace = "labware"
	}
	return m.registry.Register(newConnectionCollector(namespace, source))
}

// connectionCollector turns model.ConnectionStats into const metrics
type connectionCollector struct {
	source       StatsSource
	bytesWritten *prometheus.Desc
	bytesRead    *prometheus.Desc
	transmits    *prometheus.Desc
	replies      *prometheus.Desc
	stale        *prometheus.Desc
	timeouts     *prometheus.Desc
	open         *prometheus.Desc
}

func newConnectionCollector(namespace string, source StatsSource) *connectionCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "connection", name),
			help, []string{"device"}, nil,
		)
	}
	return &connectionCollector{
		source:       source,
		bytesWritten: desc("bytes_written_total", "Bytes written to the device"),
		bytesRead:    desc("bytes_read_total", "Bytes read from the device"),
		transmits:    desc("transmits_total", "Messages transmitted"),
		replies:      desc("replies_total", "Replies received"),
		stale:        desc("stale_replies_total", "Unclaimed replies overwritten by newer data"),
		timeouts:     desc("timeouts_total", "Receive or transmit timeouts"),
		open:         desc("open", "Connection open (0/1)"),
	}
}

func (c *connectionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesWritten
	ch <- c.bytesRead
	ch <- c.transmits
	ch <- c.replies
	ch <- c.stale
	ch <- c.timeouts
	ch <- c.open
}

func (c *connectionCollector) Collect(ch chan<- prometheus.Metric) {
	for device, s := range c.source() {
		ch <- prometheus.MustNewConstMetric(c.bytesWritten, prometheus.CounterValue, float64(s.BytesWritten), device)
		ch <- prometheus.MustNewConstMetric(c.bytesRead, prometheus.CounterValue, float64(s.BytesRead), device)
		ch <- prometheus.MustNewConstMetric(c.transmits, prometheus.CounterValue, float64(s.Transmits), device)
		ch <- prometheus.MustNewConstMetric(c.replies, prometheus.CounterValue, float64(s.Replies), device)
		ch <- prometheus.MustNewConstMetric(c.stale, prometheus.CounterValue, float64(s.StaleReplies), device)
		ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts), device)
		open := 0.0
		if s.IsOpen {
			open = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, open, device)
	}
}
