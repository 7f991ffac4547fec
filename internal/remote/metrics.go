package remote

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satmihir/justlru/storage"
)

const metricsNamespace = "justlru"

// storageCollector reads storage.Stats at scrape time, so the storage layer
// never touches prometheus.
type storageCollector struct {
	store storage.LocalStorage

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	size        *prometheus.Desc
	capacity    *prometheus.Desc
	memoryUsed  *prometheus.Desc
	memoryMax   *prometheus.Desc
}

func newStorageCollector(store storage.LocalStorage) *storageCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "cache", name), help, nil, nil)
	}
	return &storageCollector{
		store:       store,
		hits:        desc("hits_total", "Lookups that found a live entry."),
		misses:      desc("misses_total", "Lookups that found nothing."),
		evictions:   desc("evictions_total", "Entries dropped to make room."),
		expirations: desc("expirations_total", "Entries dropped after their TTL."),
		size:        desc("entries", "Entries currently resident."),
		capacity:    desc("capacity_entries", "Maximum resident entries."),
		memoryUsed:  desc("memory_used_bytes", "Bytes used by keys and values."),
		memoryMax:   desc("memory_max_bytes", "Byte limit for keys and values."),
	}
}

func (c *storageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expirations
	ch <- c.size
	ch <- c.capacity
	ch <- c.memoryUsed
	ch <- c.memoryMax
}

func (c *storageCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(st.Evictions))
	ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(st.Expirations))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity))
	ch <- prometheus.MustNewConstMetric(c.memoryUsed, prometheus.GaugeValue, float64(st.MemoryUsedBytes))
	ch <- prometheus.MustNewConstMetric(c.memoryMax, prometheus.GaugeValue, float64(st.MaxMemoryBytes))
}

// registerMetrics builds a private registry per server so tests can run
// several servers in one process.
func (s *CacheServer) registerMetrics() {
	s.registry = prometheus.NewRegistry()
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})
	s.registry.MustRegister(newStorageCollector(s.storage), s.requests)
}

func (s *CacheServer) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
