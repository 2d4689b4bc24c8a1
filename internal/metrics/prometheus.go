package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wire"

// Prometheus is a Sink backed by Prometheus collectors.
type Prometheus struct {
	registry *prometheus.Registry

	messages      prometheus.Counter
	transportErrs prometheus.Counter
	pushes        *prometheus.CounterVec
	states        *prometheus.CounterVec
	subscriptions prometheus.Gauge
	commands      *prometheus.HistogramVec
}

// NewPrometheus creates a sink and registers its collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound transport messages.",
		}),
		transportErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Transport error events.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_received_total",
			Help:      "Server pushes by type.",
		}, []string{"push_type"}),
		states: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_state_changes_total",
			Help:      "Connection state transitions by target state.",
		}, []string{"state"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Registered channel subscriptions.",
		}),
		commands: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_milliseconds",
			Help:      "Command round-trip latency.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"method", "result"}),
	}

	p.registry.MustRegister(
		p.messages,
		p.transportErrs,
		p.pushes,
		p.states,
		p.subscriptions,
		p.commands,
	)
	return p
}

// Registry exposes the underlying registry, e.g. to add process collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) MessageReceived() {
	p.messages.Inc()
}

func (p *Prometheus) TransportError() {
	p.transportErrs.Inc()
}

func (p *Prometheus) PushReceived(pushType string) {
	p.pushes.WithLabelValues(pushType).Inc()
}

func (p *Prometheus) StateChanged(state string) {
	p.states.WithLabelValues(state).Inc()
}

func (p *Prometheus) SubscriptionCount(n int) {
	p.subscriptions.Set(float64(n))
}

func (p *Prometheus) CommandCompleted(method string, ok bool, d time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	p.commands.WithLabelValues(method, result).Observe(float64(d) / float64(time.Millisecond))
}
