package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pg-sharding/shardman/pkg/models/buckets"
)

const (
	namespace = "shardman"
)

const (
	DirectionSend = "send"
	DirectionRecv = "recv"

	ResultOk            = "ok"
	ResultError         = "error"
	ResultUncertain     = "uncertain"
	ResultAlreadyExists = "already_exists"
)

var (
	// BucketsTotal tracks local buckets per status
	BucketsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buckets",
			Help:      "Number of local buckets by status",
		},
		[]string{"status"},
	)

	// MigrationsTotal counts bucket transfers
	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bucket_migrations_total",
			Help:      "Total number of bucket transfers",
		},
		[]string{"direction", "result"},
	)

	// MigrationDuration measures bucket transfer latency
	MigrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bucket_migration_duration_seconds",
			Help:      "Bucket transfer latency in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"direction"},
	)

	// CallsTotal counts dispatched procedure calls
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of bucket-scoped procedure calls",
		},
		[]string{"procedure", "result"},
	)

	// CallDuration measures procedure call latency
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Procedure call latency in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"procedure"},
	)

	// DemotionBarrierDuration measures how long a demotion waited for replicas
	DemotionBarrierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "demotion_barrier_duration_seconds",
			Help:      "Time spent waiting for replicas on demotion",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30},
		},
	)

	// DemotionBarrierTimeouts counts demotions that proceeded without full catch-up
	DemotionBarrierTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demotion_barrier_timeouts_total",
			Help:      "Total number of demotion barriers that timed out",
		},
	)

	// IsMaster is 1 while the local node is master of its replicaset
	IsMaster = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "is_master",
			Help:      "Whether the local node is the replicaset master",
		},
	)

	// ClusterStateVersion is the version of the applied sharding map
	ClusterStateVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_state_version",
			Help:      "Version of the applied cluster state",
		},
	)
)

// RecordMigration records one bucket transfer
func RecordMigration(direction, result string, d time.Duration) {
	MigrationsTotal.WithLabelValues(direction, result).Inc()
	MigrationDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// RecordCall records one dispatched call
func RecordCall(procedure string, d time.Duration, success bool) {
	result := ResultOk
	if !success {
		result = ResultError
	}
	CallsTotal.WithLabelValues(procedure, result).Inc()
	CallDuration.WithLabelValues(procedure).Observe(d.Seconds())
}

// RecordDemotionBarrier records one demotion barrier
func RecordDemotionBarrier(d time.Duration, timedOut bool) {
	DemotionBarrierDuration.Observe(d.Seconds())
	if timedOut {
		DemotionBarrierTimeouts.Inc()
	}
}

// SetClusterState publishes role and version of a newly applied cluster state
func SetClusterState(version uint64, master bool) {
	ClusterStateVersion.Set(float64(version))
	if master {
		IsMaster.Set(1)
	} else {
		IsMaster.Set(0)
	}
}

// SetBucketCounts publishes per-status bucket counts
func SetBucketCounts(info *buckets.Info) {
	BucketsTotal.WithLabelValues(string(buckets.Active)).Set(float64(info.Active))
	BucketsTotal.WithLabelValues(string(buckets.Sending)).Set(float64(info.Sending))
	BucketsTotal.WithLabelValues(string(buckets.Sent)).Set(float64(info.Sent))
	BucketsTotal.WithLabelValues(string(buckets.Receiving)).Set(float64(info.Receiving))
}
