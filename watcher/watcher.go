// This file contains the synchronization engine. It decides, for every
// source, the next block to fetch, and reconciles one convergence pass after
// the other until either the bound is reached or no source makes progress.

package watcher

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.dedis.ch/argus/blockdata"
	"go.dedis.ch/argus/watcherdb"
	"golang.org/x/xerrors"
)

// Watcher watches multiple archive sources and collects the block signatures
// of their validators.
type Watcher struct {
	db             watcherdb.DB
	fetcher        Fetcher
	storeBlockData bool
	logger         zerolog.Logger
}

// New creates a new watcher. It returns an error when the store and the
// fetcher have not been provisioned with the same set of sources, as that
// indicates a misconfiguration of the caller.
func New(db watcherdb.DB, fetcher Fetcher, storeBlockData bool,
	logger zerolog.Logger) (*Watcher, error) {

	if !blockdata.SameSources(db.ConfigSources(), fetcher.Sources()) {
		return nil, xerrors.Errorf("mismatching sources: store has %v "+
			"but fetcher has %v", db.ConfigSources(), fetcher.Sources())
	}

	w := &Watcher{
		db:             db,
		fetcher:        fetcher,
		storeBlockData: storeBlockData,
		logger:         logger,
	}

	return w, nil
}

// LowestNextBlockToSync returns the lowest block index that still needs to be
// synced from at least one source. It is dominated by the single slowest
// source: the watcher considers itself caught up only when every source is.
func (w *Watcher) LowestNextBlockToSync() (uint64, error) {
	cursors, err := w.db.LastSyncedBlocks()
	if err != nil {
		return 0, xerrors.Errorf("while reading cursors: %v", err)
	}

	lowest := uint64(0)
	first := true

	for _, cursor := range cursors {
		next := uint64(0)
		if cursor != nil {
			next = *cursor + 1
		}

		if first || next < lowest {
			lowest = next
			first = false
		}
	}

	return lowest, nil
}

// SyncBlocks syncs the blocks and collects the signatures, and the block
// material when its storage is enabled.
//
// The pass starts at the given index for the sources that have nothing synced
// yet, and right after the cursor for the others. Sources whose next block
// would reach maxHeight are left out; NoLimit disables the bound.
//
// It returns true when no source still needs a fetch below the bound, and
// false when a full iteration failed to progress any source, in which case
// the caller is expected to retry later. Fetch failures only ever skip their
// source, while a store failure aborts the whole call.
func (w *Watcher) SyncBlocks(ctx context.Context, start, maxHeight uint64) (bool, error) {
	w.logger.Debug().
		Uint64("start", start).
		Uint64("maxHeight", maxHeight).
		Msg("syncing blocks")

	for {
		cursors, err := w.db.LastSyncedBlocks()
		if err != nil {
			return false, xerrors.Errorf("while reading cursors: %v", err)
		}

		// Keep only the sources that still need a block below the bound, and
		// compute the next block to attempt for each of them.
		targets := make(map[blockdata.Source]uint64)
		for src, cursor := range cursors {
			switch {
			case cursor == nil:
				targets[src] = start
			case *cursor+1 < maxHeight:
				targets[src] = *cursor + 1
			}
		}

		if len(targets) == 0 {
			return true, nil
		}

		results := w.fetchBlocks(ctx, targets)

		// Track whether any of the sources was able to produce block
		// material. If so, more might be available.
		hadSuccess := false

		for src, res := range results {
			if res.err != nil {
				w.logger.Debug().Err(res.err).
					Stringer("source", src).
					Uint64("index", res.index).
					Msg("could not sync block")

				promFetchFailures.WithLabelValues(src.String()).Inc()

				continue
			}

			err := w.reconcile(src, res)
			if err != nil {
				return false, err
			}

			hadSuccess = true
		}

		// Nothing succeeded: either everything is synced all the way through,
		// or something else is wrong. Either way the caller retries later.
		if !hadSuccess {
			return false, nil
		}
	}
}

// reconcile records the result of one successful fetch. Storing a signature
// advances the cursor inside the store, while material without one requires
// the explicit advance. The two paths carry different store semantics and are
// deliberately not unified.
func (w *Watcher) reconcile(src blockdata.Source, res fetchResult) error {
	w.logger.Info().
		Stringer("source", src).
		Uint64("index", res.index).
		Msg("archive block retrieved")

	if w.storeBlockData {
		err := w.db.AddBlockData(src, res.data)
		if err != nil && !errors.Is(err, watcherdb.ErrAlreadyExists) {
			return xerrors.Errorf("while storing block data: %v", err)
		}
	}

	if res.data.Signature != nil {
		err := w.db.AddSignature(src, res.index, *res.data.Signature,
			blockdata.ArchivePath(res.index))
		if err != nil {
			return xerrors.Errorf("while storing signature: %v", err)
		}

		return nil
	}

	err := w.db.UpdateLastSynced(src, res.index)
	if err != nil {
		return xerrors.Errorf("while updating cursor: %v", err)
	}

	return nil
}
