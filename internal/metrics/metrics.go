// Package metrics exposes prometheus counters for the storage engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine-level counters. One instance per store; each
// gets its own registry so tests can open several stores in one process.
type Metrics struct {
	Registry *prometheus.Registry

	ReadsTotal         prometheus.Counter
	WritesTotal        prometheus.Counter
	DeletesTotal       prometheus.Counter
	TransactionsTotal  prometheus.Counter
	TxnAbortsTotal     prometheus.Counter
	TxnConflictsTotal  prometheus.Counter
	IndexUpdatesTotal  prometheus.Counter
	IndexFailuresTotal prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_engine_reads_total",
			Help: "Point reads and scan steps against the key-value engine",
		}),
		WritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_engine_writes_total",
			Help: "Key writes applied through transactions",
		}),
		DeletesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_engine_deletes_total",
			Help: "Key deletions applied through transactions",
		}),
		TransactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_engine_transactions_total",
			Help: "Read-write transactions started",
		}),
		TxnAbortsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_engine_txn_aborts_total",
			Help: "Transactions aborted by a domain-level rejection",
		}),
		TxnConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_engine_txn_conflicts_total",
			Help: "Transactions that failed commit due to a conflict",
		}),
		IndexUpdatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_index_updates_total",
			Help: "Search index updates enqueued",
		}),
		IndexFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_index_failures_total",
			Help: "Search index updates that failed (best effort, logged only)",
		}),
	}
}
