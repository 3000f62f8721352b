// Package argus defines the module-wide resources shared by the watcher
// components.
package argus

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.InfoLevel)

// PromCollectors exposes the metric collectors registered by the packages of
// the module. The daemon registers them all at once when the metrics server
// is enabled.
var PromCollectors []prometheus.Collector
