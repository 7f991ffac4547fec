package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/satmihir/justlru/internal/config"
	"github.com/satmihir/justlru/internal/logger"
	"github.com/satmihir/justlru/internal/remote"
	"github.com/satmihir/justlru/storage"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP cache server",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{config.EnvConfigPath}},
		&cli.StringFlag{Name: "addr", Usage: "listen address"},
		&cli.IntFlag{Name: "capacity", Usage: "maximum entries"},
		&cli.Uint64Flag{Name: "max-memory", Usage: "maximum bytes of keys and values"},
		&cli.IntFlag{Name: "shards", Usage: "number of storage shards"},
		&cli.Float64Flag{Name: "rate-limit", Usage: "requests per second, 0 for unlimited"},
		&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
		&cli.StringFlag{Name: "log-format", Usage: "json, console or auto"},
	},
	Action: serve,
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	store, err := newStorage(cfg.Cache)
	if err != nil {
		return err
	}
	log.Info().
		Int("capacity", cfg.Cache.Capacity).
		Uint64("max_memory", cfg.Cache.MaxMemory).
		Int("shards", cfg.Cache.Shards).
		Msg("storage ready")

	srv := remote.NewCacheServer(cfg.Server.Addr, store, remote.Options{
		Logger:      &log,
		DefaultTTL:  cfg.Server.DefaultTTL,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx)
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("addr") {
		cfg.Server.Addr = c.String("addr")
	}
	if c.IsSet("capacity") {
		cfg.Cache.Capacity = c.Int("capacity")
	}
	if c.IsSet("max-memory") {
		cfg.Cache.MaxMemory = c.Uint64("max-memory")
	}
	if c.IsSet("shards") {
		cfg.Cache.Shards = c.Int("shards")
	}
	if c.IsSet("rate-limit") {
		cfg.Server.RateLimit = c.Float64("rate-limit")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
}

func newStorage(cfg config.CacheConfig) (storage.LocalStorage, error) {
	if cfg.Shards > 1 {
		return storage.NewShardedStorage(cfg.Shards, cfg.Capacity, cfg.MaxMemory)
	}
	return storage.NewInMemoryStorage(cfg.Capacity, cfg.MaxMemory)
}
