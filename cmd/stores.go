package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"linerelay/pkg/config"
	"linerelay/pkg/store"
	"linerelay/pkg/store/memory"
	"linerelay/pkg/store/migrations"
	"linerelay/pkg/store/pg"
	"linerelay/pkg/store/sqlite"
)

// openStores connects the configured backend, migrating first when asked to.
func openStores(cfg config.StoreConfig, log *slog.Logger) (*store.Stores, error) {
	timeout := time.Duration(cfg.QueryTimeoutSeconds) * time.Second

	if cfg.AutoMigrate && cfg.Driver != config.StoreDriverMemory {
		driver, dsn, err := migrationDSN(cfg)
		if err != nil {
			return nil, err
		}
		if err := migrations.Up(driver, dsn); err != nil {
			return nil, err
		}
		log.Info("Store schema is up to date", "driver", driver)
	}

	switch cfg.Driver {
	case config.StoreDriverMemory:
		seed := make([]store.Subscriber, 0, len(cfg.Subscribers))
		for _, sub := range cfg.Subscribers {
			seed = append(seed, store.Subscriber{
				UserID:           sub.UserID,
				Channel:          sub.Channel,
				IsActive:         sub.Active,
				ActiveChatTarget: store.StringPtr(sub.ActiveChatTarget),
			})
		}
		log.Warn("Using in-memory store; target locks are lost on restart", "subscribers", len(seed))
		return memory.NewStores(seed...), nil

	case config.StoreDriverSQLite:
		return sqlite.NewSQLiteStores(cfg.DSN, timeout)

	case config.StoreDriverPostgres:
		return pg.NewPGStores(cfg.DSN, timeout)

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// migrationDSN maps a store config to the driver name and DSN golang-migrate expects.
func migrationDSN(cfg config.StoreConfig) (string, string, error) {
	switch cfg.Driver {
	case config.StoreDriverSQLite:
		return migrations.DriverSQLite, sqlite.DSN(cfg.DSN), nil
	case config.StoreDriverPostgres:
		return migrations.DriverPostgres, cfg.DSN, nil
	default:
		return "", "", fmt.Errorf("store driver %q has no schema to migrate", cfg.Driver)
	}
}
