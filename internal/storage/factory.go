package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paritytech/command-bot-sub000/internal/config"
	"github.com/paritytech/command-bot-sub000/internal/db"
	"github.com/paritytech/command-bot-sub000/internal/db/driver"
)

// NewStore opens and migrates the database selected by cfg.Storage.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*DatabaseStore, error) {
	name := cfg.Storage.Driver
	if name == "" {
		name = string(driver.DialectSQLite)
	}
	dialect, err := driver.ParseDialect(name)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Storage.DSN
	if dialect == driver.DialectSQLite {
		dsn = cfg.StoragePath()
	}

	d, err := db.OpenWithDialect(dsn, dialect)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	if err := d.Migrate(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return NewDatabaseStore(d, logger), nil
}
