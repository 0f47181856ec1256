package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryanwahyu/iaccessible/internal/config"
	domainid "github.com/bryanwahyu/iaccessible/internal/domain/identity"
	"github.com/bryanwahyu/iaccessible/internal/infra/db"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/iaccessible/internal/infra/engine"
	"github.com/bryanwahyu/iaccessible/internal/infra/identity"
)

// openStore connects to the configured database and migrates it.
func openStore(ctx context.Context) (*sql.DB, sqlstore.Dialect, error) {
	conn, dialect, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("%s connect error: %w", cfg.Database.Driver, err)
	}
	if err := sqlstore.Migrate(ctx, conn, dialect); err != nil {
		_ = conn.Close()
		return nil, 0, err
	}
	return conn, dialect, nil
}

func engineOptions() engine.Options {
	return engine.Options{
		ExecPath:    cfg.Engine.ExecPath,
		Headless:    *cfg.Engine.Headless,
		IdleAfter:   time.Duration(cfg.Engine.NetworkIdleMS) * time.Millisecond,
		RuleArchive: cfg.Engine.RuleArchive,
		Policies:    cfg.Engine.Policies,
		Logger:      logger,
	}
}

func newVerifier() domainid.Verifier {
	if cfg.Auth.Mode == config.AuthFirebase {
		return identity.NewFirebaseVerifier(cfg.Auth.FirebaseProjectID)
	}
	return identity.NewStaticVerifier(cfg.Auth.StaticTokens)
}
