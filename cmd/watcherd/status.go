// This file contains the HTTP server exposing the synchronization status and
// the prometheus metrics of the daemon.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.dedis.ch/argus"
	"go.dedis.ch/argus/watcher"
)

const shutdownTimeout = 5 * time.Second

// statusServer serves the behind/caught-up flag of the sync thread and the
// prometheus metrics of the module.
type statusServer struct {
	logger zerolog.Logger
	server *http.Server
	thread *watcher.SyncThread
}

func newStatusServer(addr string, thread *watcher.SyncThread,
	logger zerolog.Logger) *statusServer {

	for _, c := range argus.PromCollectors {
		err := prometheus.DefaultRegisterer.Register(c)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to register collector")
		}
	}

	s := &statusServer{
		logger: logger,
		thread: thread,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Listen starts the server. It blocks until the server is closed.
func (s *statusServer) Listen() {
	s.logger.Info().Str("addr", s.server.Addr).Msg("status server started")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Err(err).Msg("status server failed")
	}
}

// Close shuts the server down, waiting for the pending requests to complete.
func (s *statusServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("status server shutdown failed")
	}
}

func (s *statusServer) handleStatus(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(map[string]bool{
		"behind": s.thread.IsBehind(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to write status")
	}
}
