// Package ledger defines the local ledger that serves as the authoritative
// block-height reference of the watcher.
//
// The watcher never writes to the ledger. It only compares its own progress
// against the number of blocks, while another component of the deployment
// appends the blocks.
package ledger

import "errors"

// ErrNoBlock is the error returned when a block index is unknown.
var ErrNoBlock = errors.New("no block")

// Ledger is the interface to store and get the local blocks.
type Ledger interface {
	// NumBlocks returns the number of blocks in the ledger.
	NumBlocks() (uint64, error)

	// Append appends the payload as the next block and returns its index.
	Append(payload []byte) (uint64, error)

	// Get returns the payload of the block at the index, or ErrNoBlock.
	Get(index uint64) ([]byte, error)
}
