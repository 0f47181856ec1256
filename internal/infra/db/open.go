// Package db picks a driver from configuration and returns a ready handle.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/iaccessible/internal/config"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/mysql"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/postgres"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlite"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlstore"
)

// Open connects to the configured database and returns its SQL dialect.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, sqlstore.Dialect, error) {
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		db, err := mysql.Connect(ctx, cfg.MySQLDSN())
		return db, sqlstore.MySQL, err
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		return db, sqlstore.Postgres, err
	case config.DriverSQLite:
		db, err := sqlite.Connect(ctx, cfg.Database.Path)
		return db, sqlstore.SQLite, err
	default:
		return nil, 0, fmt.Errorf("%w: unknown database driver %q", config.ErrInvalidConfig, cfg.Database.Driver)
	}
}
