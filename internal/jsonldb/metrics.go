package jsonldb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Session kinds used as the "kind" label.
const (
	kindStore = "store"
	kindLog   = "log"
)

// Metrics holds the Prometheus collectors updated by a DB.
//
// Collectors are usable without registration; call Register to expose them.
type Metrics struct {
	commits         *prometheus.CounterVec
	aborts          *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
	recordsWritten  prometheus.Counter
	blobsWritten    *prometheus.CounterVec
	blobsRead       *prometheus.CounterVec
	historyFailures prometheus.Counter
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsonldb_sessions_committed_total",
			Help: "Sessions that persisted their state, by kind",
		}, []string{"kind"}),
		aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsonldb_sessions_aborted_total",
			Help: "Sessions that were discarded without writing, by kind",
		}, []string{"kind"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jsonldb_lock_wait_seconds",
			Help:    "Time spent waiting for a per-key lock",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"kind"}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jsonldb_log_records_written_total",
			Help: "Log records flushed to disk",
		}),
		blobsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsonldb_blobs_written_total",
			Help: "Blobs written, by mode",
		}, []string{"mode"}),
		blobsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsonldb_blobs_read_total",
			Help: "Blobs read, by mode",
		}, []string{"mode"}),
		historyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jsonldb_history_failures_total",
			Help: "Git history commits that failed after data was written",
		}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.commits, m.aborts, m.lockWait, m.recordsWritten,
		m.blobsWritten, m.blobsRead, m.historyFailures,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeLockWait(kind string, start time.Time) {
	m.lockWait.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
