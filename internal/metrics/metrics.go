// Package metrics exposes pipeline progress counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/phishcatch/internal/severity"
)

const namespace = "phishcatch"

// Pipeline holds the counters updated by the event processor and sources.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	registry *prometheus.Registry

	messages       *prometheus.CounterVec
	domains        prometheus.Counter
	buckets        *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	malformed      prometheus.Counter
	writeErrors    prometheus.Counter
	reconnects     prometheus.Counter
	lastEventEpoch prometheus.Gauge
}

// NewPipeline creates counters registered on a private registry.
func NewPipeline() *Pipeline {
	reg := prometheus.NewRegistry()
	p := &Pipeline{
		registry: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Certstream messages received, by message type.",
		}, []string{"type"}),
		domains: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domains_scored_total",
			Help:      "Domains scored across all certificate updates.",
		}),
		buckets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domains_bucketed_total",
			Help:      "Scored domains by severity bucket.",
		}, []string{"bucket"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised, by label.",
		}, []string{"label"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Input lines that could not be decoded as certstream messages.",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Detection records that failed to persist.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certstream_reconnects_total",
			Help:      "Certstream reconnect attempts.",
		}),
		lastEventEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_message_timestamp_seconds",
			Help:      "Unix time the last message was processed.",
		}),
	}
	reg.MustRegister(
		p.messages, p.domains, p.buckets, p.alerts,
		p.malformed, p.writeErrors, p.reconnects, p.lastEventEpoch,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// Export every bucket from the start, including empty ones.
	for _, b := range severity.Buckets {
		p.buckets.WithLabelValues(strconv.Itoa(b))
	}
	return p
}

// Message counts one received message of the given type.
func (p *Pipeline) Message(messageType string) {
	if p == nil {
		return
	}
	if messageType == "" {
		messageType = "unknown"
	}
	p.messages.WithLabelValues(messageType).Inc()
	p.lastEventEpoch.SetToCurrentTime()
}

// DomainScored advances the progress counter for one domain.
func (p *Pipeline) DomainScored(bucket int) {
	if p == nil {
		return
	}
	p.domains.Inc()
	p.buckets.WithLabelValues(strconv.Itoa(bucket)).Inc()
}

// Alert counts one raised alert.
func (p *Pipeline) Alert(label string) {
	if p == nil {
		return
	}
	p.alerts.WithLabelValues(label).Inc()
}

// Malformed counts one undecodable input line.
func (p *Pipeline) Malformed() {
	if p == nil {
		return
	}
	p.malformed.Inc()
}

// WriteError counts one failed record write.
func (p *Pipeline) WriteError() {
	if p == nil {
		return
	}
	p.writeErrors.Inc()
}

// Reconnect counts one certstream reconnect attempt.
func (p *Pipeline) Reconnect() {
	if p == nil {
		return
	}
	p.reconnects.Inc()
}

// Registry returns the registry backing the counters.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
