package prom

import (
	"time"

	"github.com/IvanBrykalov/venuecache/fetch"
	"github.com/prometheus/client_golang/prometheus"
)

// FetchAdapter implements fetch.Metrics.
type FetchAdapter struct {
	attempts prometheus.Counter
	retries  prometheus.Histogram
	results  *prometheus.CounterVec
}

// NewFetch registers the fetch metrics on reg
// (nil => prometheus.DefaultRegisterer).
func NewFetch(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *FetchAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &FetchAdapter{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "fetch",
			Name:        "attempts_total",
			Help:        "Calls of fetch functions, retries included",
			ConstLabels: constLabels,
		}),
		retries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "fetch",
			Name:        "retry_delay_seconds",
			Help:        "Delay before each retry",
			Buckets:     []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			ConstLabels: constLabels,
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "fetch",
			Name:        "results_total",
			Help:        "Finished fetches by outcome",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
	}
	reg.MustRegister(a.attempts, a.retries, a.results)
	return a
}

func (a *FetchAdapter) Attempt() { a.attempts.Inc() }

func (a *FetchAdapter) Retry(delay time.Duration) { a.retries.Observe(delay.Seconds()) }

func (a *FetchAdapter) Success() { a.results.WithLabelValues("success").Inc() }

func (a *FetchAdapter) Failure(auth bool) {
	if auth {
		a.results.WithLabelValues("auth_error").Inc()
		return
	}
	a.results.WithLabelValues("error").Inc()
}

var _ fetch.Metrics = (*FetchAdapter)(nil)
