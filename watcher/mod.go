// Package watcher implements the convergence engine that keeps the local
// record synchronized with the block-producing activity of the watched
// sources.
//
// The engine reads the per-source cursors from the watcher store, fetches the
// missing block material from every source in parallel and reconciles the
// results back into the store. A background thread drives the engine by
// polling the local ledger, which acts as the authoritative block-height
// reference.
package watcher

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/argus"
	"go.dedis.ch/argus/blockdata"
)

// NoLimit is the value to pass as the maximum block height of a sync to
// disable the bound. A sync without a bound never converges: it keeps looping
// while any source makes progress and yields only on a global stall.
const NoLimit uint64 = ^uint64(0)

// Fetcher is the interface of the collaborator that retrieves block material
// from an archive URL. Implementations must be safe for concurrent use, as
// one fetch per source runs at the same time.
type Fetcher interface {
	// Sources returns the set of sources the fetcher is configured with. It
	// is used once, at construction, to validate the provisioning.
	Sources() []blockdata.Source

	// FetchBlock performs exactly one attempt to retrieve the block material
	// at the given URL.
	FetchBlock(ctx context.Context, url string) (blockdata.BlockData, error)
}

// Ledger is the interface of the local authoritative block-height reference.
type Ledger interface {
	// NumBlocks returns the current number of blocks in the local ledger.
	NumBlocks() (uint64, error)
}

// defines prometheus metrics
var (
	promBehind = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "argus_watcher_behind",
		Help: "whether the slowest source trails the ledger height",
	})

	promNextBlock = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "argus_watcher_next_block",
		Help: "lowest next block to sync across the sources",
	})

	promFetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_watcher_fetch_failures_total",
		Help: "total number of failed fetch attempts",
	}, []string{"source"})
)

func init() {
	argus.PromCollectors = append(argus.PromCollectors,
		promBehind, promNextBlock, promFetchFailures)
}
