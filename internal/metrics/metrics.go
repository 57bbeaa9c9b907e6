// Package metrics собирает счётчики prometheus для запросов к удалённому API,
// переходов сессии, мастера платежа и монитора бездействия.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/session"
	"github.com/mmeshcher/nexuspay-client/internal/wizard"
)

const namespace = "nexuspay"

// Metrics реализует наблюдателей gateway, expiry и wizard.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	sessionEvents *prometheus.CounterVec
	wizardSteps   *prometheus.CounterVec
	warnings      prometheus.Counter
	timeouts      prometheus.Counter
}

// New создаёт счётчики в собственном реестре.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Remote API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session transitions by kind and logout reason.",
		}, []string{"kind", "reason"}),
		wizardSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_steps_total",
			Help:      "Payment wizard step results.",
		}, []string{"mode", "step", "outcome"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_warnings_total",
			Help:      "Inactivity warnings shown.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_timeouts_total",
			Help:      "Sessions ended by inactivity.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.sessionEvents,
		m.wizardSteps,
		m.warnings,
		m.timeouts,
	)
	return m
}

// Handler отдаёт метрики в формате prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry возвращает реестр счётчиков.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(kind gateway.Kind) string {
	if kind == "" {
		return "ok"
	}
	return string(kind)
}

// ObserveResponse реализует gateway.Observer.
func (m *Metrics) ObserveResponse(method string, kind gateway.Kind) {
	m.requests.WithLabelValues(method, outcome(kind)).Inc()
}

// WarningShown реализует expiry.Observer.
func (m *Metrics) WarningShown() {
	m.warnings.Inc()
}

// TimedOut реализует expiry.Observer.
func (m *Metrics) TimedOut() {
	m.timeouts.Inc()
}

// StepCompleted реализует wizard.Observer.
func (m *Metrics) StepCompleted(mode wizard.Mode, step wizard.Step) {
	m.wizardSteps.WithLabelValues(string(mode), step.String(), "ok").Inc()
}

// StepFailed реализует wizard.Observer.
func (m *Metrics) StepFailed(mode wizard.Mode, step wizard.Step, kind gateway.Kind) {
	if kind == "" {
		kind = gateway.KindNetwork
	}
	m.wizardSteps.WithLabelValues(string(mode), step.String(), string(kind)).Inc()
}

// Subscriber: источник переходов сессии.
type Subscriber interface {
	Subscribe() (<-chan session.Event, func())
}

// WatchSessions считает переходы сессии до отмены ctx.
func (m *Metrics) WatchSessions(ctx context.Context, sub Subscriber) error {
	events, cancel := sub.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.sessionEvents.WithLabelValues(string(ev.Kind), string(ev.Reason)).Inc()
		}
	}
}
