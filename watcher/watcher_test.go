package watcher

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/argus/blockdata"
	"go.dedis.ch/argus/core/store/kv"
	"go.dedis.ch/argus/internal/testing/fake"
	"go.dedis.ch/argus/watcherdb"
)

const (
	testSourceA = blockdata.Source("https://archive.example.com/a/")
	testSourceB = blockdata.Source("https://archive.example.com/b/")
)

func TestNew_MismatchingSources(t *testing.T) {
	db, clean := makeStore(t, testSourceA, testSourceB)
	defer clean()

	fetcher := &fake.Fetcher{Srcs: []blockdata.Source{testSourceA}}

	_, err := New(db, fetcher, false, zerolog.Nop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "mismatching sources")
}

func TestWatcher_LowestNextBlockToSync(t *testing.T) {
	db, clean := makeStore(t, testSourceA, testSourceB)
	defer clean()

	w := makeWatcher(t, db, &fake.Fetcher{Srcs: db.ConfigSources()})

	// Nothing synced yet: the next block is block 0.
	lowest, err := w.LowestNextBlockToSync()
	require.NoError(t, err)
	require.Equal(t, uint64(0), lowest)

	// The slowest source dominates.
	require.NoError(t, db.UpdateLastSynced(testSourceA, 5))

	lowest, err = w.LowestNextBlockToSync()
	require.NoError(t, err)
	require.Equal(t, uint64(0), lowest)

	require.NoError(t, db.UpdateLastSynced(testSourceB, 2))

	lowest, err = w.LowestNextBlockToSync()
	require.NoError(t, err)
	require.Equal(t, uint64(3), lowest)

	w.db = badCursorDB{DB: db}

	_, err = w.LowestNextBlockToSync()
	require.EqualError(t, err, fake.Err("while reading cursors"))
}

func TestWatcher_LowestNextBlockToSync_NoSource(t *testing.T) {
	db, clean := makeStore(t)
	defer clean()

	w := makeWatcher(t, db, &fake.Fetcher{})

	lowest, err := w.LowestNextBlockToSync()
	require.NoError(t, err)
	require.Equal(t, uint64(0), lowest)
}

func TestWatcher_SyncBlocks_Bounded(t *testing.T) {
	db, clean := makeStore(t, testSourceA, testSourceB)
	defer clean()

	fetcher := makeArchives(t, db.ConfigSources(), 3, true)

	w := makeWatcher(t, db, fetcher, withBlockData)

	converged, err := w.SyncBlocks(context.Background(), 0, 3)
	require.NoError(t, err)
	require.True(t, converged)

	cursors, err := db.LastSyncedBlocks()
	require.NoError(t, err)
	require.Equal(t, uint64(2), *cursors[testSourceA])
	require.Equal(t, uint64(2), *cursors[testSourceB])

	lowest, err := w.LowestNextBlockToSync()
	require.NoError(t, err)
	require.Equal(t, uint64(3), lowest)

	for index := uint64(0); index < 3; index++ {
		sigs, err := db.GetSignatures(index)
		require.NoError(t, err)
		require.Len(t, sigs, 2)

		_, err = db.GetBlockData(testSourceA, index)
		require.NoError(t, err)
	}
}

func TestWatcher_SyncBlocks_NoBound(t *testing.T) {
	db, clean := makeStore(t, testSourceA, testSourceB)
	defer clean()

	fetcher := makeArchives(t, db.ConfigSources(), 3, true)

	w := makeWatcher(t, db, fetcher)

	// Without a bound the sync can never report convergence: it progresses
	// through the available blocks and yields on the first global stall.
	converged, err := w.SyncBlocks(context.Background(), 0, NoLimit)
	require.NoError(t, err)
	require.False(t, converged)

	cursors, err := db.LastSyncedBlocks()
	require.NoError(t, err)
	require.Equal(t, uint64(2), *cursors[testSourceA])
	require.Equal(t, uint64(2), *cursors[testSourceB])
}

func TestWatcher_SyncBlocks_FailingSource(t *testing.T) {
	db, clean := makeStore(t, testSourceA, testSourceB)
	defer clean()

	// Only the first source has an archive: the second fails every fetch.
	fetcher := makeArchives(t, []blockdata.Source{testSourceA}, 2, true)
	fetcher.Srcs = db.ConfigSources()

	w := makeWatcher(t, db, fetcher)

	converged, err := w.SyncBlocks(context.Background(), 0, 2)
	require.NoError(t, err)
	require.False(t, converged)

	// The failing source never advances but does not prevent the other one
	// from catching up.
	cursors, err := db.LastSyncedBlocks()
	require.NoError(t, err)
	require.Equal(t, uint64(1), *cursors[testSourceA])
	require.Nil(t, cursors[testSourceB])
}

func TestWatcher_SyncBlocks_AllFailing(t *testing.T) {
	db, clean := makeStore(t, testSourceA, testSourceB)
	defer clean()

	fetcher := &fake.Fetcher{Srcs: db.ConfigSources(), Err: fake.GetError()}

	w := makeWatcher(t, db, fetcher)

	converged, err := w.SyncBlocks(context.Background(), 0, 2)
	require.NoError(t, err)
	require.False(t, converged)

	// No cursor has moved.
	cursors, err := db.LastSyncedBlocks()
	require.NoError(t, err)
	require.Nil(t, cursors[testSourceA])
	require.Nil(t, cursors[testSourceB])
}

func TestWatcher_SyncBlocks_ExistingBlockData(t *testing.T) {
	db, clean := makeStore(t, testSourceA)
	defer clean()

	fetcher := makeArchives(t, db.ConfigSources(), 1, true)

	// The material is already stored from a previous run: the re-fetch must
	// be treated as benign.
	url, err := testSourceA.BlockURL(0)
	require.NoError(t, err)
	require.NoError(t, db.AddBlockData(testSourceA, fetcher.Blocks[url]))

	w := makeWatcher(t, db, fetcher, withBlockData)

	converged, err := w.SyncBlocks(context.Background(), 0, 1)
	require.NoError(t, err)
	require.True(t, converged)

	cursors, err := db.LastSyncedBlocks()
	require.NoError(t, err)
	require.Equal(t, uint64(0), *cursors[testSourceA])
}

func TestWatcher_SyncBlocks_NoSignature(t *testing.T) {
	db, clean := makeStore(t, testSourceA)
	defer clean()

	fetcher := makeArchives(t, db.ConfigSources(), 2, false)

	w := makeWatcher(t, db, fetcher)

	converged, err := w.SyncBlocks(context.Background(), 0, 2)
	require.NoError(t, err)
	require.True(t, converged)

	// The cursor moved through the explicit advance, and no signature has
	// been recorded.
	cursors, err := db.LastSyncedBlocks()
	require.NoError(t, err)
	require.Equal(t, uint64(1), *cursors[testSourceA])

	sigs, err := db.GetSignatures(0)
	require.NoError(t, err)
	require.Empty(t, sigs)
}

func TestWatcher_SyncBlocks_BadStore(t *testing.T) {
	db, clean := makeStore(t, testSourceA)
	defer clean()

	fetcher := makeArchives(t, db.ConfigSources(), 1, true)

	w := makeWatcher(t, db, fetcher, withBlockData)

	w.db = badCursorDB{DB: db}
	_, err := w.SyncBlocks(context.Background(), 0, 1)
	require.EqualError(t, err, fake.Err("while reading cursors"))

	w.db = badBlockDB{DB: db}
	_, err = w.SyncBlocks(context.Background(), 0, 1)
	require.EqualError(t, err, fake.Err("while storing block data"))

	w.db = badSignatureDB{DB: db}
	w.storeBlockData = false
	_, err = w.SyncBlocks(context.Background(), 0, 1)
	require.EqualError(t, err, fake.Err("while storing signature"))
}

func TestWatcher_SyncBlocks_BadCursorUpdate(t *testing.T) {
	db, clean := makeStore(t, testSourceA)
	defer clean()

	fetcher := makeArchives(t, db.ConfigSources(), 1, false)

	w := makeWatcher(t, db, fetcher)

	w.db = badUpdateDB{DB: db}
	_, err := w.SyncBlocks(context.Background(), 0, 1)
	require.EqualError(t, err, fake.Err("while updating cursor"))
}

// -----------------------------------------------------------------------------
// Utility functions

type watcherOption func(*Watcher)

func withBlockData(w *Watcher) {
	w.storeBlockData = true
}

func makeDB(t *testing.T) (kv.DB, func()) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := kv.New(path)
	require.NoError(t, err)

	return db, func() { db.Close() }
}

func makeStore(t *testing.T, sources ...blockdata.Source) (*watcherdb.InDisk, func()) {
	db, clean := makeDB(t)

	store, err := watcherdb.New(db, sources)
	require.NoError(t, err)

	return store, clean
}

func makeWatcher(t *testing.T, db watcherdb.DB, fetcher Fetcher,
	opts ...watcherOption) *Watcher {

	w, err := New(db, fetcher, false, zerolog.Nop())
	require.NoError(t, err)

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// makeArchives populates a fake fetcher with the blocks 0..n-1 for every
// source, optionally attaching a signature to each of them.
func makeArchives(t *testing.T, sources []blockdata.Source, n uint64,
	signed bool) *fake.Fetcher {

	fetcher := &fake.Fetcher{Srcs: sources}

	for _, src := range sources {
		for index := uint64(0); index < n; index++ {
			data := blockdata.BlockData{
				Index:    index,
				Contents: []byte{byte(index)},
			}

			if signed {
				data.Signature = &blockdata.Signature{
					Signer:    []byte(src),
					Signature: []byte{byte(index)},
				}
			}

			require.NoError(t, fetcher.AddBlock(src, data))
		}
	}

	return fetcher
}

type badCursorDB struct {
	watcherdb.DB
}

func (db badCursorDB) LastSyncedBlocks() (map[blockdata.Source]*uint64, error) {
	return nil, fake.GetError()
}

type badBlockDB struct {
	watcherdb.DB
}

func (db badBlockDB) AddBlockData(src blockdata.Source, data blockdata.BlockData) error {
	return fake.GetError()
}

type badSignatureDB struct {
	watcherdb.DB
}

func (db badSignatureDB) AddSignature(src blockdata.Source, index uint64,
	sig blockdata.Signature, archivePath string) error {

	return fake.GetError()
}

type badUpdateDB struct {
	watcherdb.DB
}

func (db badUpdateDB) UpdateLastSynced(src blockdata.Source, index uint64) error {
	return fake.GetError()
}
