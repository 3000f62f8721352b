// This file contains the configuration of the daemon. The values can come
// from a YAML file, from the command line flags, or both, with the flags
// taking precedence.

package main

import (
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.dedis.ch/argus/blockdata"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const defaultPollInterval = 10 * time.Second

// fileConfig is the YAML layout of the configuration file.
type fileConfig struct {
	Sources        []string `yaml:"sources"`
	DB             string   `yaml:"db"`
	LedgerDB       string   `yaml:"ledgerDb"`
	PollInterval   string   `yaml:"pollInterval"`
	StoreBlockData bool     `yaml:"storeBlockData"`
	MetricsAddr    string   `yaml:"metricsAddr"`
}

// config is the resolved configuration of the daemon.
type config struct {
	Sources        []blockdata.Source
	DBPath         string
	LedgerDBPath   string
	PollInterval   time.Duration
	StoreBlockData bool
	MetricsAddr    string
}

func loadConfig(cliCtx *cli.Context) (config, error) {
	file := fileConfig{}

	if path := cliCtx.String("config"); path != "" {
		buffer, err := os.ReadFile(path)
		if err != nil {
			return config{}, xerrors.Errorf("failed to read config file: %v", err)
		}

		err = yaml.Unmarshal(buffer, &file)
		if err != nil {
			return config{}, xerrors.Errorf("failed to parse config file: %v", err)
		}
	}

	cfg := config{
		DBPath:         file.DB,
		LedgerDBPath:   file.LedgerDB,
		StoreBlockData: file.StoreBlockData,
		MetricsAddr:    file.MetricsAddr,
		PollInterval:   defaultPollInterval,
	}

	for _, src := range file.Sources {
		cfg.Sources = append(cfg.Sources, blockdata.Source(src))
	}

	if file.PollInterval != "" {
		interval, err := time.ParseDuration(file.PollInterval)
		if err != nil {
			return config{}, xerrors.Errorf("invalid poll interval: %v", err)
		}

		cfg.PollInterval = interval
	}

	// The flags take precedence over the file.
	if cliCtx.IsSet("db") {
		cfg.DBPath = cliCtx.String("db")
	}

	if cliCtx.IsSet("ledger-db") {
		cfg.LedgerDBPath = cliCtx.String("ledger-db")
	}

	if srcs := cliCtx.StringSlice("source"); len(srcs) > 0 {
		cfg.Sources = nil
		for _, src := range srcs {
			cfg.Sources = append(cfg.Sources, blockdata.Source(src))
		}
	}

	if cliCtx.IsSet("poll-interval") {
		interval, err := time.ParseDuration(cliCtx.String("poll-interval"))
		if err != nil {
			return config{}, xerrors.Errorf("invalid poll interval: %v", err)
		}

		cfg.PollInterval = interval
	}

	if cliCtx.IsSet("store-block-data") {
		cfg.StoreBlockData = cliCtx.Bool("store-block-data")
	}

	if cliCtx.IsSet("metrics-addr") {
		cfg.MetricsAddr = cliCtx.String("metrics-addr")
	}

	if len(cfg.Sources) == 0 {
		return config{}, xerrors.New("at least one source is required")
	}

	if cfg.DBPath == "" || cfg.LedgerDBPath == "" {
		return config{}, xerrors.New("both db and ledger-db paths are required")
	}

	return cfg, nil
}
