package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "iaccessible.db", cfg.Database.Path)
	assert.Equal(t, AuthStatic, cfg.Auth.Mode)
	assert.Equal(t, int64(10), cfg.Credits.WebpageScanCost)
	assert.Equal(t, 60, cfg.Engine.TimeoutSeconds)
	assert.Equal(t, []string{"WCAG_2_1"}, cfg.Engine.Policies)
	require.NotNil(t, cfg.Engine.Headless)
	assert.True(t, *cfg.Engine.Headless)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: MySQL
  user: scanner
  password: secret
  name: a11y
engine:
  headless: false
  policies: [WCAG_2_2]
auth:
  mode: static
  staticTokens:
    dev-token: user-1
credits:
  webpageScanCost: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.False(t, *cfg.Engine.Headless)
	assert.Equal(t, []string{"WCAG_2_2"}, cfg.Engine.Policies)
	assert.Equal(t, "user-1", cfg.Auth.StaticTokens["dev-token"])
	assert.Equal(t, int64(3), cfg.Credits.WebpageScanCost)
	assert.Equal(t, "scanner:secret@tcp(localhost:3306)/a11y?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IACC_DB_DRIVER", "postgres")
	t.Setenv("IACC_LOG_LEVEL", "debug")
	t.Setenv("IACC_AUTH_MODE", "firebase")
	t.Setenv("FIREBASE_PROJECT_ID", "demo-project")

	cfg, err := Load(writeConfig(t, "database:\n  driver: sqlite\n"))
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, AuthFirebase, cfg.Auth.Mode)
	assert.Equal(t, "demo-project", cfg.Auth.FirebaseProjectID)
	assert.Contains(t, cfg.PostgresDSN(), "port=5432")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown driver", yaml: "database:\n  driver: oracle\n"},
		{name: "unknown auth mode", yaml: "auth:\n  mode: ldap\n"},
		{name: "firebase without project", yaml: "auth:\n  mode: firebase\n"},
		{name: "negative cost", yaml: "credits:\n  webpageScanCost: -1\n"},
		{name: "minio without endpoint", yaml: "minio:\n  enabled: true\n"},
	}
	t.Setenv("IACC_DB_DRIVER", "")
	t.Setenv("IACC_AUTH_MODE", "")
	t.Setenv("FIREBASE_PROJECT_ID", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500, cfg.Engine.NetworkIdleMS)
}
