package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/iaccessible/internal/config"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlstore"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "open.db")

	conn, dialect, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, sqlstore.SQLite, dialect)
	assert.NoError(t, conn.PingContext(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"

	_, _, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
