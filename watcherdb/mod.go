// Package watcherdb implements the durable record of the watcher: the
// per-source synchronization cursors, the fetched block material when its
// storage is enabled and the block signatures collected from the sources.
//
// The cursors are owned and mutated exclusively by this package. Storing a
// signature advances the cursor of its source as part of the same
// transaction, while block material without a signature requires an explicit
// cursor advance. The two paths carry different semantics and are kept
// separate on purpose.
package watcherdb

import (
	"context"
	"errors"

	"go.dedis.ch/argus/blockdata"
)

// ErrAlreadyExists is the error returned when block material is inserted for
// a (source, index) pair that already holds some. Callers are expected to
// treat it as a benign re-fetch.
var ErrAlreadyExists = errors.New("block data already exists")

// SignatureRecord associates a stored signature with the source it came from,
// the block index it attests and the canonical archive path of that block.
type SignatureRecord struct {
	Source      blockdata.Source
	Index       uint64
	ArchivePath string
	Signature   blockdata.Signature
}

// DB is the interface of the durable watcher store.
type DB interface {
	// ConfigSources returns the set of sources the store has been configured
	// with.
	ConfigSources() []blockdata.Source

	// LastSyncedBlocks returns the last synced block index for every
	// configured source. A nil entry means nothing has been synced yet for
	// that source.
	LastSyncedBlocks() (map[blockdata.Source]*uint64, error)

	// AddBlockData stores the block material fetched from the source. It
	// returns ErrAlreadyExists when material is already recorded for that
	// (source, index) pair. It does not touch the cursor.
	AddBlockData(src blockdata.Source, data blockdata.BlockData) error

	// AddSignature stores the signature of the block and advances the cursor
	// of the source to the block index in the same transaction.
	AddSignature(src blockdata.Source, index uint64, sig blockdata.Signature,
		archivePath string) error

	// UpdateLastSynced advances the cursor of the source to the block index.
	// It is the explicit counterpart of AddSignature for block material that
	// carries no signature.
	UpdateLastSynced(src blockdata.Source, index uint64) error

	// GetBlockData returns the block material stored for the (source, index)
	// pair, if any.
	GetBlockData(src blockdata.Source, index uint64) (blockdata.BlockData, error)

	// GetSignatures returns the signatures stored for the block index,
	// indexed by source.
	GetSignatures(index uint64) (map[blockdata.Source]blockdata.Signature, error)

	// Watch returns a channel populated with the signatures stored from now
	// on. The channel is closed when the context is done.
	Watch(ctx context.Context) <-chan SignatureRecord
}
