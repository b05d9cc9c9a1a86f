package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/salesync/internal/config"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/JonMunkholm/salesync/internal/store/postgres"
	"github.com/JonMunkholm/salesync/internal/store/sqlite"
)

// OpenStore opens the backend selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Debug("opened sqlite store", "path", cfg.Store.SQLitePath)
		return s, nil

	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Database.DSN(), postgres.Options{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("connected to postgres", "max_conns", cfg.Database.MaxConns)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
