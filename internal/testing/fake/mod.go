// Package fake provides fake implementations for interfaces commonly used in
// the repository.
// The implementations offer configuration to return errors when it is needed
// by the unit test and it is also possible to record the calls of functions
// of an object in some cases.
package fake

import (
	"context"
	"sync"

	"go.dedis.ch/argus/blockdata"
	"golang.org/x/xerrors"
)

var fakeErr = xerrors.New("fake error")

// GetError returns the fake error.
func GetError() error {
	return fakeErr
}

// Err appends the fake error message to the message.
func Err(msg string) string {
	return msg + ": fake error"
}

// Call is a tool to keep track of a function calls.
type Call struct {
	sync.Mutex

	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	c.Lock()
	defer c.Unlock()

	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	c.Lock()
	defer c.Unlock()

	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	c.Lock()
	defer c.Unlock()

	c.calls = append(c.calls, args)
}

// Fetcher is a fake implementation of a block fetcher. It serves the blocks
// of an in-memory archive keyed by URL.
//
// - implements watcher.Fetcher
type Fetcher struct {
	Srcs   []blockdata.Source
	Blocks map[string]blockdata.BlockData
	Err    error
	Call   *Call
}

// Sources implements watcher.Fetcher.
func (f *Fetcher) Sources() []blockdata.Source {
	return append([]blockdata.Source{}, f.Srcs...)
}

// FetchBlock implements watcher.Fetcher. It returns the block registered for
// the URL, the configured error, or an error when the URL is unknown.
func (f *Fetcher) FetchBlock(ctx context.Context, url string) (blockdata.BlockData, error) {
	if f.Call != nil {
		f.Call.Add(url)
	}

	if f.Err != nil {
		return blockdata.BlockData{}, f.Err
	}

	data, found := f.Blocks[url]
	if !found {
		return blockdata.BlockData{}, xerrors.Errorf("no block at %q", url)
	}

	return data, nil
}

// AddBlock registers the block of the source at its canonical URL.
func (f *Fetcher) AddBlock(src blockdata.Source, data blockdata.BlockData) error {
	url, err := src.BlockURL(data.Index)
	if err != nil {
		return err
	}

	if f.Blocks == nil {
		f.Blocks = make(map[string]blockdata.BlockData)
	}

	f.Blocks[url] = data

	return nil
}

// Ledger is a fake implementation of the local ledger height reference.
//
// - implements watcher.Ledger
type Ledger struct {
	Num uint64
	Err error
}

// NumBlocks implements watcher.Ledger.
func (l Ledger) NumBlocks() (uint64, error) {
	return l.Num, l.Err
}
