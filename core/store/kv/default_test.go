package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBoltDB_UpdateAndView(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	err := db.Update(func(tx WritableTx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("test"))
		require.NoError(t, err)

		return bucket.Set([]byte("ping"), []byte("pong"))
	})
	require.NoError(t, err)

	err = db.View(func(tx ReadableTx) error {
		bucket := tx.GetBucket([]byte("test"))
		require.NotNil(t, bucket)
		require.Equal(t, []byte("pong"), bucket.Get([]byte("ping")))

		return nil
	})
	require.NoError(t, err)
}

func TestBoltDB_MissingBucket(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	err := db.View(func(tx ReadableTx) error {
		require.Nil(t, tx.GetBucket([]byte("unknown")))

		return nil
	})
	require.NoError(t, err)
}

func TestBoltDB_OnCommit(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	num := 0

	err := db.Update(func(tx WritableTx) error {
		tx.OnCommit(func() { num++ })

		_, err := tx.GetBucketOrCreate([]byte("test"))

		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, num)

	err = db.Update(func(tx WritableTx) error {
		tx.OnCommit(func() { num++ })

		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")
	require.Equal(t, 1, num)
}

func TestBoltBucket_Scan(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	err := db.Update(func(tx WritableTx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("test"))
		require.NoError(t, err)

		require.NoError(t, bucket.Set([]byte("aa"), []byte{1}))
		require.NoError(t, bucket.Set([]byte("ab"), []byte{2}))
		require.NoError(t, bucket.Set([]byte("bc"), []byte{3}))

		keys := [][]byte{}
		err = bucket.Scan([]byte("a"), func(k, v []byte) error {
			keys = append(keys, append([]byte{}, k...))
			return nil
		})
		require.NoError(t, err)
		require.Len(t, keys, 2)

		return nil
	})
	require.NoError(t, err)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDB(t *testing.T) (DB, func()) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := New(path)
	require.NoError(t, err)

	return db, func() { db.Close() }
}
