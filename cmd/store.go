package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/dcswatch/servertrack/internal/enrich"
	"github.com/dcswatch/servertrack/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "servertrack.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRuleset() (*enrich.Ruleset, error) {
	if cfg.Ingest.RulesetPath != "" {
		return enrich.LoadRuleset(cfg.Ingest.RulesetPath)
	}
	return enrich.DefaultRuleset(), nil
}
