package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/config"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// loadConfig reads .env (when present), the --config file and the
// environment, then applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

// openEngine builds the engine for one-shot commands, logging text to Stderr.
func openEngine(cmd *cobra.Command) (*tendril.Engine, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.New(level)

	eng, err := tendril.New(cfg, tendril.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, cfg, logger, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id '%s'", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
