// Package fetcher implements the retrieval of block material from the
// archives published by the watched sources.
//
// A fetcher performs exactly one attempt per call. Retries are the business
// of the synchronization loop driving it.
package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/argus"
	"go.dedis.ch/argus/blockdata"
	"golang.org/x/xerrors"
)

// HTTP fetches block material over plain HTTP(S) GET requests. It is safe for
// concurrent use by multiple goroutines.
//
// - implements watcher.Fetcher
type HTTP struct {
	sources []blockdata.Source
	client  *http.Client
	logger  zerolog.Logger
}

// Option is a function to configure an HTTP fetcher.
type Option func(*HTTP)

// WithClient makes the fetcher use the given HTTP client, for instance to set
// a transport-level timeout.
func WithClient(client *http.Client) Option {
	return func(f *HTTP) {
		f.client = client
	}
}

// NewHTTP creates a new HTTP fetcher for the given set of sources.
func NewHTTP(sources []blockdata.Source, opts ...Option) *HTTP {
	f := &HTTP{
		sources: append([]blockdata.Source{}, sources...),
		client:  http.DefaultClient,
		logger:  argus.Logger.With().Str("component", "fetcher").Logger(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Sources implements watcher.Fetcher. It returns the set of sources the
// fetcher has been configured with.
func (f *HTTP) Sources() []blockdata.Source {
	return append([]blockdata.Source{}, f.sources...)
}

// FetchBlock implements watcher.Fetcher. It downloads the block material at
// the given URL and decodes it.
func (f *HTTP) FetchBlock(ctx context.Context, url string) (blockdata.BlockData, error) {
	logger := f.logger.With().Str("attempt", xid.New().String()).Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return blockdata.BlockData{}, xerrors.Errorf("failed to create request: %v", err)
	}

	logger.Debug().Str("url", url).Msg("fetching block")

	resp, err := f.client.Do(req)
	if err != nil {
		return blockdata.BlockData{}, xerrors.Errorf("request failed: %v", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return blockdata.BlockData{}, xerrors.Errorf("unexpected status %d for %q",
			resp.StatusCode, url)
	}

	buffer, err := io.ReadAll(resp.Body)
	if err != nil {
		return blockdata.BlockData{}, xerrors.Errorf("while reading body: %v", err)
	}

	var data blockdata.BlockData
	err = json.Unmarshal(buffer, &data)
	if err != nil {
		return blockdata.BlockData{}, xerrors.Errorf("malformed block data: %v", err)
	}

	return data, nil
}
