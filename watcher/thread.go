// This file contains the background thread that drives the engine. It
// continuously compares the progress of the watcher against the height of the
// local ledger and syncs new material while behind.

package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/argus/watcherdb"
	"golang.org/x/xerrors"
)

// maxBlocksPerSyncIteration is the maximal number of blocks to attempt to
// sync at each loop iteration, so that a single pass stays bounded and the
// loop regularly re-checks for a stop request.
const maxBlocksPerSyncIteration = 10

// SyncThread syncs new materials for the watcher when the local ledger
// appends new blocks. The loop runs until Stop is called, or until a store or
// ledger failure, which the thread has no way to recover from.
type SyncThread struct {
	logger       zerolog.Logger
	watcher      *Watcher
	ledger       Ledger
	pollInterval time.Duration

	currentlyBehind atomic.Bool
	stopRequested   atomic.Bool
	wg              sync.WaitGroup
}

// NewSyncThread creates a new sync thread and starts its background loop.
func NewSyncThread(db watcherdb.DB, fetcher Fetcher, ledger Ledger,
	pollInterval time.Duration, storeBlockData bool,
	logger zerolog.Logger) (*SyncThread, error) {

	logger.Debug().Msg("creating watcher sync thread")

	watcher, err := New(db, fetcher, storeBlockData, logger)
	if err != nil {
		return nil, xerrors.Errorf("failed to create watcher: %v", err)
	}

	t := &SyncThread{
		logger:       logger,
		watcher:      watcher,
		ledger:       ledger,
		pollInterval: pollInterval,
	}

	t.wg.Add(1)
	go t.run()

	return t, nil
}

// Stop requests the background loop to stop and waits until it has exited.
// The current iteration, including any in-flight fetches, finishes naturally.
// It is safe to call Stop more than once.
func (t *SyncThread) Stop() {
	t.stopRequested.Store(true)
	t.wg.Wait()
}

// IsBehind returns whether the slowest source trails the height of the local
// ledger, as published by the last loop iteration. It never blocks, and keeps
// returning the last published value after the loop has exited.
func (t *SyncThread) IsBehind() bool {
	return t.currentlyBehind.Load()
}

func (t *SyncThread) run() {
	defer t.wg.Done()

	t.logger.Debug().Msg("watcher sync thread started")

	for {
		if t.stopRequested.Load() {
			t.logger.Debug().Msg("watcher sync thread stop requested")
			return
		}

		lowest, err := t.watcher.LowestNextBlockToSync()
		if err != nil {
			t.logger.Err(err).Msg("failed to get lowest next block to sync")
			return
		}

		numBlocks, err := t.ledger.NumBlocks()
		if err != nil {
			t.logger.Err(err).Msg("failed to get the ledger height")
			return
		}

		isBehind := lowest < numBlocks

		t.currentlyBehind.Store(isBehind)
		promNextBlock.Set(float64(lowest))
		if isBehind {
			promBehind.Set(1)
		} else {
			promBehind.Set(0)
		}

		t.logger.Debug().
			Uint64("lowestNextBlockToSync", lowest).
			Uint64("ledgerHeight", numBlocks).
			Bool("isBehind", isBehind).
			Msg("watcher sync status")

		if isBehind {
			// The bound keeps one pass from syncing more than the iteration
			// budget, so the loop regularly gets a chance to observe a stop
			// request.
			maxBlocks := numBlocks
			if lowest+maxBlocksPerSyncIteration < maxBlocks {
				maxBlocks = lowest + maxBlocksPerSyncIteration
			}

			// The convergence result is deliberately ignored: the next
			// iteration re-evaluates the behind-ness from scratch.
			_, err := t.watcher.SyncBlocks(context.Background(), lowest, maxBlocks)
			if err != nil {
				t.logger.Err(err).Msg("could not sync blocks")
				return
			}
		} else if !t.stopRequested.Load() {
			t.logger.Trace().
				Uint64("lowestNextBlockToSync", lowest).
				Msg("watcher is caught up, sleeping")

			time.Sleep(t.pollInterval)
		}
	}
}
