// Package metrics exposes Prometheus metrics for the dispatcher, the pools,
// the channel and the clause exchange.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/usi-verification-and-security/ptplib/internal/solver"
	"github.com/usi-verification-and-security/ptplib/pkg/threadpool"
)

const namespace = "ptp"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	// commandsTotal counts dispatched commands by command name
	commandsTotal *prometheus.CounterVec
	// searchResultsTotal counts recorded search outcomes by result
	searchResultsTotal *prometheus.CounterVec
	// searchFailuresTotal counts searches that returned an error or panicked
	searchFailuresTotal prometheus.Counter
	// lemmasPublishedTotal counts lemmas written to the exchange
	lemmasPublishedTotal prometheus.Counter
	// lemmasPulledTotal counts lemmas read from the exchange
	lemmasPulledTotal prometheus.Counter
	// exchangeErrorsTotal counts failed exchange calls by operation
	exchangeErrorsTotal *prometheus.CounterVec
}

// New creates a registry with the Go and process collectors and the
// dispatcher metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched by the communicator, by command",
		}, []string{"command"}),
		searchResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_results_total",
			Help:      "Recorded search outcomes, by result",
		}, []string{"result"}),
		searchFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_failures_total",
			Help:      "Searches that failed with an error or a panic",
		}),
		lemmasPublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lemmas_published_total",
			Help:      "Lemmas written to the clause exchange",
		}),
		lemmasPulledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lemmas_pulled_total",
			Help:      "Lemmas read from the clause exchange",
		}),
		exchangeErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_errors_total",
			Help:      "Failed clause exchange calls, by operation",
		}, []string{"operation"}),
	}
}

// CommandDispatched counts one dispatched command.
func (m *Metrics) CommandDispatched(command string) {
	m.commandsTotal.WithLabelValues(command).Inc()
}

// SearchFinished counts one recorded search outcome.
func (m *Metrics) SearchFinished(result solver.Result, err error) {
	m.searchResultsTotal.WithLabelValues(result.String()).Inc()
	if err != nil {
		m.searchFailuresTotal.Inc()
	}
}

// LemmasPublished adds n published lemmas.
func (m *Metrics) LemmasPublished(n int) { m.lemmasPublishedTotal.Add(float64(n)) }

// LemmasPulled adds n pulled lemmas.
func (m *Metrics) LemmasPulled(n int) { m.lemmasPulledTotal.Add(float64(n)) }

// ExchangeFailed counts one failed exchange call.
func (m *Metrics) ExchangeFailed(operation string) {
	m.exchangeErrorsTotal.WithLabelValues(operation).Inc()
}

// RegisterPool exposes a pool's task counters as gauges labelled by pool name.
func (m *Metrics) RegisterPool(p *threadpool.Pool) {
	labels := prometheus.Labels{"pool": p.Name()}
	factory := promauto.With(m.Registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "pool", Name: "tasks_queued",
		Help: "Tasks waiting for a worker", ConstLabels: labels,
	}, func() float64 { return float64(p.TasksQueued()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "pool", Name: "tasks_running",
		Help: "Tasks currently executing", ConstLabels: labels,
	}, func() float64 { return float64(p.TasksRunning()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "pool", Name: "threads",
		Help: "Worker goroutines", ConstLabels: labels,
	}, func() float64 { return float64(p.ThreadCount()) })
}

// RegisterGauge exposes fn as a gauge named ptp_<name>.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	promauto.With(m.Registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn)
}
