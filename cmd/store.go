package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/unmappedos-sys/unmappedos/internal/confidence"
	"github.com/unmappedos-sys/unmappedos/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "unmapped.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadEngineConfig() (confidence.EngineConfig, error) {
	if cfg.Engine.ConfigPath == "" {
		return confidence.DefaultEngineConfig(), nil
	}
	return confidence.LoadEngineConfig(cfg.Engine.ConfigPath)
}
