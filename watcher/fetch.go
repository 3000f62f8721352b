// This file contains the parallel fetch stage of the engine. It is naive in
// the sense that it spawns one goroutine per source, which in theory does not
// scale but in practice the number of sources is small and bounded by the
// deployment configuration.

package watcher

import (
	"context"
	"sync"

	"go.dedis.ch/argus/blockdata"
	"golang.org/x/xerrors"
)

// fetchResult is the outcome of one fetch attempt against one source. Either
// the data or the error is set.
type fetchResult struct {
	index uint64
	data  blockdata.BlockData
	err   error
}

// fetchBlocks attempts to fetch the target block of every source
// concurrently. All the attempts run to completion before it returns, and a
// failure is captured as a per-source result, never as a failure of the
// stage. Each call represents exactly one attempt per source.
func (w *Watcher) fetchBlocks(ctx context.Context,
	targets map[blockdata.Source]uint64) map[blockdata.Source]fetchResult {

	results := make(map[blockdata.Source]fetchResult, len(targets))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for src, index := range targets {
		wg.Add(1)

		go func(src blockdata.Source, index uint64) {
			defer wg.Done()

			res := w.fetchSingleBlock(ctx, src, index)

			mu.Lock()
			results[src] = res
			mu.Unlock()
		}(src, index)
	}

	wg.Wait()

	return results
}

// fetchSingleBlock resolves the canonical path of the block against the base
// URL of the source and performs one fetch attempt.
func (w *Watcher) fetchSingleBlock(ctx context.Context, src blockdata.Source,
	index uint64) fetchResult {

	res := fetchResult{index: index}

	url, err := src.BlockURL(index)
	if err != nil {
		res.err = xerrors.Errorf("failed to build url: %v", err)
		return res
	}

	data, err := w.fetcher.FetchBlock(ctx, url)
	if err != nil {
		res.err = xerrors.Errorf("fetch failed: %v", err)
		return res
	}

	res.data = data

	return res
}
