package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// UpdatesApplied counts metadata updates merged into the cache
	UpdatesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "monmeta",
		Subsystem: "cache",
		Name:      "updates_applied_total",
		Help:      "Total number of metadata updates applied to the local cache",
	})

	// PartitionsDeleted counts partitions removed by delete-sentinel entries
	PartitionsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "monmeta",
		Subsystem: "cache",
		Name:      "partitions_deleted_total",
		Help:      "Total number of partitions deleted from the local cache",
	})

	// TopicCount is the number of topics in the current snapshot
	TopicCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "monmeta",
		Subsystem: "cache",
		Name:      "topics",
		Help:      "Number of topics in the current metadata snapshot",
	})

	// PartitionCount is the number of partitions in the current snapshot
	PartitionCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "monmeta",
		Subsystem: "cache",
		Name:      "partitions",
		Help:      "Number of partitions in the current metadata snapshot",
	})

	// BrokerCount is the size of the alive broker set in the current snapshot
	BrokerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "monmeta",
		Subsystem: "cache",
		Name:      "alive_brokers",
		Help:      "Number of alive brokers in the current metadata snapshot",
	})
)

// RegisterMetrics registers the cache collectors into the default Prometheus
// registry (idempotent).
func RegisterMetrics() {
	once.Do(func() {
		prometheus.MustRegister(UpdatesApplied)
		prometheus.MustRegister(PartitionsDeleted)
		prometheus.MustRegister(TopicCount)
		prometheus.MustRegister(PartitionCount)
		prometheus.MustRegister(BrokerCount)
	})
}
