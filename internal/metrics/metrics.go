// Package metrics exposes Prometheus counters for broadcasts, commands and
// relay traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const Namespace = "tpmb"

// Metrics holds the collectors of one bot instance on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	BroadcastCycles prometheus.Counter
	BroadcastSends  *prometheus.CounterVec
	Commands        *prometheus.CounterVec
	RelayMessages   *prometheus.CounterVec
	Groups          prometheus.Gauge
	Sessions        prometheus.Gauge
	TimeOffset      prometheus.Gauge
}

// New registers the bot collectors plus the Go and process collectors on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		BroadcastCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "broadcast_cycles_total",
			Help:      "Total number of completed broadcast cycles",
		}),
		BroadcastSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "broadcast_sends_total",
			Help:      "Total number of broadcast deliveries by outcome",
		}, []string{"outcome"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Total number of operator commands by command and outcome",
		}, []string{"command", "outcome"}),
		RelayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relay_messages_total",
			Help:      "Total number of end-user relay messages by outcome",
		}, []string{"outcome"}),
		Groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "groups",
			Help:      "Number of registered broadcast destinations",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions",
			Help:      "Number of live user menu sessions",
		}),
		TimeOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "time_offset_seconds",
			Help:      "Last measured offset between network time and the local clock",
		}),
	}

	reg.MustRegister(
		m.BroadcastCycles,
		m.BroadcastSends,
		m.Commands,
		m.RelayMessages,
		m.Groups,
		m.Sessions,
		m.TimeOffset,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordCycle counts one broadcast cycle with its delivery results.
func (m *Metrics) RecordCycle(sent, failed int) {
	m.BroadcastCycles.Inc()
	m.BroadcastSends.WithLabelValues("success").Add(float64(sent))
	m.BroadcastSends.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) RecordCommand(command, outcome string) {
	m.Commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) RecordRelay(outcome string) {
	m.RelayMessages.WithLabelValues(outcome).Inc()
}
