// This file contains the persistent implementation of the local ledger. It
// keeps the number of blocks in an in-memory cache so that the frequent
// height queries of the watcher do not hit the database.

package ledger

import (
	"encoding/binary"
	"sync"

	"go.dedis.ch/argus/core/store/kv"
	"golang.org/x/xerrors"
)

var ledgerBucket = []byte("ledger")

// InDisk is a persistent storage implementation for the local blocks.
//
// - implements ledger.Ledger
type InDisk struct {
	sync.Mutex

	db     kv.DB
	length uint64
}

// NewDiskStore creates a new persistent ledger.
func NewDiskStore(db kv.DB) *InDisk {
	return &InDisk{db: db}
}

// Load reads the database to rebuild the length cache.
func (s *InDisk) Load() error {
	s.Lock()
	defer s.Unlock()

	s.length = 0

	return s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(ledgerBucket)
		if bucket == nil {
			return nil
		}

		err := bucket.ForEach(func(k, v []byte) error {
			s.length++
			return nil
		})
		if err != nil {
			return xerrors.Errorf("while scanning: %v", err)
		}

		return nil
	})
}

// NumBlocks implements ledger.Ledger. It returns the number of blocks stored
// in the ledger.
func (s *InDisk) NumBlocks() (uint64, error) {
	s.Lock()
	defer s.Unlock()

	return s.length, nil
}

// Append implements ledger.Ledger. It appends the payload as the next block
// and returns its index.
func (s *InDisk) Append(payload []byte) (uint64, error) {
	s.Lock()
	index := s.length
	s.Unlock()

	err := s.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(ledgerBucket)
		if err != nil {
			return xerrors.Errorf("bucket failed: %v", err)
		}

		err = bucket.Set(makeKey(index), payload)
		if err != nil {
			return xerrors.Errorf("while writing: %v", err)
		}

		tx.OnCommit(func() {
			s.Lock()
			s.length++
			s.Unlock()
		})

		return nil
	})

	if err != nil {
		return 0, err
	}

	return index, nil
}

// Get implements ledger.Ledger. It returns the payload of the block at the
// index if it exists, otherwise an error.
func (s *InDisk) Get(index uint64) ([]byte, error) {
	var payload []byte

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(ledgerBucket)
		if bucket == nil {
			return xerrors.Errorf("index %d not found: %w", index, ErrNoBlock)
		}

		value := bucket.Get(makeKey(index))
		if value == nil {
			return xerrors.Errorf("index %d not found: %w", index, ErrNoBlock)
		}

		payload = append([]byte{}, value...)

		return nil
	})

	if err != nil {
		return nil, err
	}

	return payload, nil
}

func makeKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, index)

	return key
}
