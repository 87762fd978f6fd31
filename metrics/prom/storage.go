package prom

import (
	"github.com/IvanBrykalov/venuecache/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// StorageAdapter implements storage.Metrics.
type StorageAdapter struct {
	removed   *prometheus.CounterVec
	emergency prometheus.Counter
	evicted   prometheus.Counter
	dropped   prometheus.Counter
}

// NewStorage registers the persistent store metrics on reg
// (nil => prometheus.DefaultRegisterer).
func NewStorage(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *StorageAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &StorageAdapter{
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "storage",
			Name:        "cleanup_removed_total",
			Help:        "Entries removed by cleanup, by kind",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		emergency: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "storage",
			Name:        "emergency_cleanups_total",
			Help:        "Emergency cleanups triggered by a full store",
			ConstLabels: constLabels,
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "storage",
			Name:        "emergency_evicted_total",
			Help:        "Entries removed by emergency cleanups",
			ConstLabels: constLabels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "storage",
			Name:        "dropped_writes_total",
			Help:        "Writes that could not be persisted",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.removed, a.emergency, a.evicted, a.dropped)
	return a
}

func (a *StorageAdapter) Cleanup(expired, corrupted int) {
	a.removed.WithLabelValues("expired").Add(float64(expired))
	a.removed.WithLabelValues("corrupted").Add(float64(corrupted))
}

func (a *StorageAdapter) Emergency(evicted int) {
	a.emergency.Inc()
	a.evicted.Add(float64(evicted))
}

func (a *StorageAdapter) Dropped() { a.dropped.Inc() }

var _ storage.Metrics = (*StorageAdapter)(nil)
