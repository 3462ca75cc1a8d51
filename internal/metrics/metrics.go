// Package metrics declares the Prometheus instruments shared by the
// binaries and serves them together with the health endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestedFixtures counts fixtures upserted per ingest window.
	IngestedFixtures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "ingestor",
		Name:      "fixtures_total",
		Help:      "Fixtures upserted from the provider.",
	}, []string{"window"})

	// ProviderRequests counts provider HTTP calls by result.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "ingestor",
		Name:      "provider_requests_total",
		Help:      "Sports provider HTTP requests by outcome.",
	}, []string{"outcome"})

	// ResultsDerived counts stored fixture derivations.
	ResultsDerived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "oracle",
		Name:      "results_derived_total",
		Help:      "Fixture results derived and stored.",
	})

	// ResultConflicts counts rejected conflicting derivations.
	ResultConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "oracle",
		Name:      "result_conflicts_total",
		Help:      "Derivations rejected because a different result was already stored.",
	})

	// SettlementAttempts counts settlement outcomes per class.
	SettlementAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "settlement",
		Name:      "attempts_total",
		Help:      "Pool settlement attempts by outcome.",
	}, []string{"outcome"})

	// SettlementDivergences counts audited chain/local result mismatches.
	SettlementDivergences = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "settlement",
		Name:      "divergences_total",
		Help:      "Settlements where the chain result differed from the local derivation.",
	})

	// CyclesResolved counts resolved Oddyssey cycles.
	CyclesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "oddyssey",
		Name:      "cycles_resolved_total",
		Help:      "Oddyssey cycles resolved on chain.",
	})

	// SlipsEvaluated counts evaluated slips per cycle resolution.
	SlipsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "oddyssey",
		Name:      "slips_evaluated_total",
		Help:      "Slips scored during cycle resolution.",
	})

	// IndexerCursor tracks the last processed block per stream.
	IndexerCursor = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bitredict",
		Subsystem: "indexer",
		Name:      "cursor_block",
		Help:      "Last processed block number per event stream.",
	}, []string{"stream"})

	// IndexedEvents counts decoded chain events per type.
	IndexedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "indexer",
		Name:      "events_total",
		Help:      "Chain events decoded and projected.",
	}, []string{"event"})

	// TxSent counts oracle bot transactions by method and outcome.
	TxSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitredict",
		Subsystem: "chain",
		Name:      "tx_total",
		Help:      "Signed transactions by method and outcome.",
	}, []string{"method", "outcome"})
)
