// This file contains the persistent implementation of the watcher store. It
// records the configured sources, the per-source cursors, the block material
// and the signatures in a key/value database.

package watcherdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.dedis.ch/argus/blockdata"
	"go.dedis.ch/argus/core/store/kv"
	"golang.org/x/xerrors"
)

var (
	configBucket     = []byte("config")
	lastSyncedBucket = []byte("last_synced")
	blocksBucket     = []byte("blocks")
	signaturesBucket = []byte("signatures")
)

// InDisk is a persistent watcher store.
//
// - implements watcherdb.DB
type InDisk struct {
	db      kv.DB
	sources []blockdata.Source
	watcher *observable
}

// New creates a new persistent store for the given set of sources. The set is
// recorded in the database so that reopening it with a different set is
// detected and refused.
func New(db kv.DB, sources []blockdata.Source) (*InDisk, error) {
	sources = dedup(sources)

	err := db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(configBucket)
		if err != nil {
			return xerrors.Errorf("config bucket failed: %v", err)
		}

		existing := []blockdata.Source{}
		err = bucket.ForEach(func(k, v []byte) error {
			existing = append(existing, blockdata.Source(k))
			return nil
		})
		if err != nil {
			return xerrors.Errorf("while reading config: %v", err)
		}

		if len(existing) > 0 && !blockdata.SameSources(existing, sources) {
			return xerrors.Errorf("database is configured with different "+
				"sources: %v != %v", existing, sources)
		}

		for _, src := range sources {
			err = bucket.Set([]byte(src), []byte{})
			if err != nil {
				return xerrors.Errorf("while writing config: %v", err)
			}
		}

		for _, name := range [][]byte{lastSyncedBucket, blocksBucket, signaturesBucket} {
			_, err = tx.GetBucketOrCreate(name)
			if err != nil {
				return xerrors.Errorf("bucket failed: %v", err)
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s := &InDisk{
		db:      db,
		sources: sources,
		watcher: newObservable(),
	}

	return s, nil
}

// ConfigSources implements watcherdb.DB. It returns the set of sources the
// store has been configured with.
func (s *InDisk) ConfigSources() []blockdata.Source {
	return append([]blockdata.Source{}, s.sources...)
}

// LastSyncedBlocks implements watcherdb.DB. It returns the last synced block
// index of every configured source, with a nil entry for the sources that
// have nothing synced yet.
func (s *InDisk) LastSyncedBlocks() (map[blockdata.Source]*uint64, error) {
	res := make(map[blockdata.Source]*uint64, len(s.sources))

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(lastSyncedBucket)
		if bucket == nil {
			return xerrors.New("missing cursor bucket")
		}

		for _, src := range s.sources {
			value := bucket.Get([]byte(src))
			if value == nil {
				res[src] = nil
				continue
			}

			if len(value) != 8 {
				return xerrors.Errorf("malformed cursor for %q", src)
			}

			index := binary.LittleEndian.Uint64(value)
			res[src] = &index
		}

		return nil
	})

	if err != nil {
		return nil, xerrors.Errorf("while reading cursors: %v", err)
	}

	return res, nil
}

// AddBlockData implements watcherdb.DB. It stores the block material fetched
// from the source, or returns ErrAlreadyExists when material is already
// recorded for that (source, index) pair.
func (s *InDisk) AddBlockData(src blockdata.Source, data blockdata.BlockData) error {
	value, err := json.Marshal(data)
	if err != nil {
		return xerrors.Errorf("failed to serialize: %v", err)
	}

	key := makeKey(src, data.Index)

	err = s.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(blocksBucket)
		if err != nil {
			return xerrors.Errorf("bucket failed: %v", err)
		}

		if bucket.Get(key) != nil {
			return xerrors.Errorf("block %d from %q: %w", data.Index, src, ErrAlreadyExists)
		}

		err = bucket.Set(key, value)
		if err != nil {
			return xerrors.Errorf("while writing: %v", err)
		}

		return nil
	})

	return err
}

// AddSignature implements watcherdb.DB. It stores the signature of the block
// and advances the cursor of the source in the same transaction, so that a
// stored signature and the matching cursor can never diverge.
func (s *InDisk) AddSignature(src blockdata.Source, index uint64,
	sig blockdata.Signature, archivePath string) error {

	rec := SignatureRecord{
		Source:      src,
		Index:       index,
		ArchivePath: archivePath,
		Signature:   sig,
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return xerrors.Errorf("failed to serialize: %v", err)
	}

	err = s.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(signaturesBucket)
		if err != nil {
			return xerrors.Errorf("bucket failed: %v", err)
		}

		err = bucket.Set(makeKey(src, index), value)
		if err != nil {
			return xerrors.Errorf("while writing signature: %v", err)
		}

		err = setCursor(tx, src, index)
		if err != nil {
			return err
		}

		tx.OnCommit(func() {
			s.watcher.Notify(rec)
		})

		return nil
	})

	return err
}

// UpdateLastSynced implements watcherdb.DB. It advances the cursor of the
// source to the block index.
func (s *InDisk) UpdateLastSynced(src blockdata.Source, index uint64) error {
	return s.db.Update(func(tx kv.WritableTx) error {
		return setCursor(tx, src, index)
	})
}

// GetBlockData implements watcherdb.DB. It returns the block material stored
// for the (source, index) pair if it exists, otherwise an error.
func (s *InDisk) GetBlockData(src blockdata.Source, index uint64) (blockdata.BlockData, error) {
	var data blockdata.BlockData

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(blocksBucket)
		if bucket == nil {
			return xerrors.New("missing block bucket")
		}

		value := bucket.Get(makeKey(src, index))
		if value == nil {
			return xerrors.Errorf("block %d from %q not found", index, src)
		}

		err := json.Unmarshal(value, &data)
		if err != nil {
			return xerrors.Errorf("malformed block: %v", err)
		}

		return nil
	})

	if err != nil {
		return blockdata.BlockData{}, err
	}

	return data, nil
}

// GetSignatures implements watcherdb.DB. It returns the signatures stored for
// the block index, indexed by source.
func (s *InDisk) GetSignatures(index uint64) (map[blockdata.Source]blockdata.Signature, error) {
	res := make(map[blockdata.Source]blockdata.Signature)

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(signaturesBucket)
		if bucket == nil {
			return xerrors.New("missing signature bucket")
		}

		for _, src := range s.sources {
			value := bucket.Get(makeKey(src, index))
			if value == nil {
				continue
			}

			var rec SignatureRecord
			err := json.Unmarshal(value, &rec)
			if err != nil {
				return xerrors.Errorf("malformed signature: %v", err)
			}

			res[src] = rec.Signature
		}

		return nil
	})

	if err != nil {
		return nil, xerrors.Errorf("while reading signatures: %v", err)
	}

	return res, nil
}

// Watch implements watcherdb.DB. It returns a channel populated with the
// signatures stored from now on, closed when the context is done.
func (s *InDisk) Watch(ctx context.Context) <-chan SignatureRecord {
	obs := newObserver(ctx, s.watcher)

	return obs.ch
}

func setCursor(tx kv.WritableTx, src blockdata.Source, index uint64) error {
	bucket, err := tx.GetBucketOrCreate(lastSyncedBucket)
	if err != nil {
		return xerrors.Errorf("bucket failed: %v", err)
	}

	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, index)

	err = bucket.Set([]byte(src), value)
	if err != nil {
		return xerrors.Errorf("while writing cursor: %v", err)
	}

	return nil
}

func makeKey(src blockdata.Source, index uint64) []byte {
	return []byte(fmt.Sprintf("%s/%016x", src, index))
}

func dedup(sources []blockdata.Source) []blockdata.Source {
	seen := make(map[blockdata.Source]struct{}, len(sources))
	res := make([]blockdata.Source, 0, len(sources))

	for _, src := range sources {
		_, found := seen[src]
		if found {
			continue
		}

		seen[src] = struct{}{}
		res = append(res, src)
	}

	return res
}
