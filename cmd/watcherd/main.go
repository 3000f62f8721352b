// Package main implements the watcher daemon. It watches the archives of a
// set of validators, collects their block signatures and exposes its
// synchronization status over HTTP.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.dedis.ch/argus"
	"go.dedis.ch/argus/core/store/kv"
	"go.dedis.ch/argus/fetcher"
	"go.dedis.ch/argus/ledger"
	"go.dedis.ch/argus/watcher"
	"go.dedis.ch/argus/watcherdb"
	"golang.org/x/xerrors"
)

func main() {
	app := &cli.App{
		Name:  "watcherd",
		Usage: "watch validator archives and collect block signatures",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "path of the watcher database",
			},
			&cli.StringFlag{
				Name:  "ledger-db",
				Usage: "path of the local ledger database",
			},
			&cli.StringSliceFlag{
				Name:  "source",
				Usage: "base URL of a watched archive, repeatable",
			},
			&cli.StringFlag{
				Name:  "poll-interval",
				Usage: "how long to wait between ledger polls when caught up",
			},
			&cli.BoolFlag{
				Name:  "store-block-data",
				Usage: "store the fetched block material next to the signatures",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "address of the HTTP status and metrics server",
			},
		},
		Action: run,
	}

	err := app.Run(os.Args)
	if err != nil {
		argus.Logger.Fatal().Err(err).Msg("watcherd failed")
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return xerrors.Errorf("invalid configuration: %v", err)
	}

	logger := argus.Logger.With().Str("component", "watcherd").Logger()

	db, err := kv.New(cfg.DBPath)
	if err != nil {
		return xerrors.Errorf("failed to open watcher db: %v", err)
	}

	defer db.Close()

	ledgerDB, err := kv.New(cfg.LedgerDBPath)
	if err != nil {
		return xerrors.Errorf("failed to open ledger db: %v", err)
	}

	defer ledgerDB.Close()

	store, err := watcherdb.New(db, cfg.Sources)
	if err != nil {
		return xerrors.Errorf("failed to open watcher store: %v", err)
	}

	blocks := ledger.NewDiskStore(ledgerDB)

	err = blocks.Load()
	if err != nil {
		return xerrors.Errorf("failed to load ledger: %v", err)
	}

	thread, err := watcher.NewSyncThread(store, fetcher.NewHTTP(cfg.Sources),
		blocks, cfg.PollInterval, cfg.StoreBlockData, logger)
	if err != nil {
		return xerrors.Errorf("failed to start sync thread: %v", err)
	}

	var status *statusServer
	if cfg.MetricsAddr != "" {
		status = newStatusServer(cfg.MetricsAddr, thread, logger)

		go status.Listen()
	}

	logger.Info().
		Int("sources", len(cfg.Sources)).
		Str("db", cfg.DBPath).
		Msg("watcherd started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	<-sig

	logger.Info().Msg("shutting down")

	if status != nil {
		status.Close()
	}

	thread.Stop()

	return nil
}
