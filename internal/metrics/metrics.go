package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatewaylab/gatewaybench/internal/config"
)

const (
	prometheusNamespace = "gatewaybench"
)

// Registry extends the prometheus registry with the load test collectors and
// the http handler serving them. It implements bench.Observer.
type Registry struct {
	*prometheus.Registry
	HTTPHandler http.Handler

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	users           prometheus.Gauge
	jobs            *prometheus.CounterVec
	panics          prometheus.Counter
}

func MakeRegistry() *Registry {
	registry := prometheus.NewRegistry()
	buildInfoGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: prometheusNamespace, Subsystem: "build", Name: "info"},
		[]string{"version", "goversion", "commit", "branch", "build_timestamp"},
	)
	buildInfoGauge.With(prometheus.Labels{
		"version":         config.Version,
		"commit":          config.CommitHash,
		"branch":          config.Branch,
		"build_timestamp": config.BuildTimestamp,
		"goversion":       runtime.Version(),
	}).Inc()

	r := &Registry{
		Registry:    registry,
		HTTPHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace, Name: "requests_total",
			Help: "requests sent to the system under test, by result (success or failure)",
		}, []string{"method", "name", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prometheusNamespace, Name: "request_duration_seconds",
			Help:    "latency of the requests sent to the system under test",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"method", "name"}),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: prometheusNamespace, Name: "users",
			Help: "number of running simulated users",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace, Subsystem: "workload", Name: "jobs_total",
			Help: "finished workload jobs, by final status",
		}, []string{"status"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: prometheusNamespace, Name: "panics_total",
			Help: "recovered goroutine panics",
		}),
	}

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(buildInfoGauge, r.requests, r.requestDuration, r.users, r.jobs, r.panics)
	return r
}

// ObserveRequest counts a request and records its latency.
func (r *Registry) ObserveRequest(method, name string, latency time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.requests.WithLabelValues(method, name, result).Inc()
	r.requestDuration.WithLabelValues(method, name).Observe(latency.Seconds())
}

// ObserveUsers sets the number of running users.
func (r *Registry) ObserveUsers(count int) {
	r.users.Set(float64(count))
}

// ObserveJob counts a workload job reaching a final status.
func (r *Registry) ObserveJob(status string) {
	r.jobs.WithLabelValues(status).Inc()
}

// PanicsCounter counts panics recovered by the panic groups.
func (r *Registry) PanicsCounter() prometheus.Counter {
	return r.panics
}
