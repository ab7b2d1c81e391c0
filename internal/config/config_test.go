package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("SYNTAGMA_TEST_PORT", "9000")

	assert.Equal(t, "port: 9000", ExpandEnv("port: ${SYNTAGMA_TEST_PORT:3001}"))
	assert.Equal(t, "port: 3001", ExpandEnv("port: ${SYNTAGMA_TEST_MISSING:3001}"))
	assert.Equal(t, "name: ", ExpandEnv("name: ${SYNTAGMA_TEST_MISSING}"))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("SYNTAGMA_TEST_SECRET", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8080
database:
  driver: sqlite
  path: /tmp/test.db
migration:
  require_backup: true
jwt:
  secret: ${SYNTAGMA_TEST_SECRET:fallback}
backup:
  schedule: "0 0 3 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.True(t, cfg.Migration.RequireBackup)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "0 0 3 * * *", cfg.Backup.Schedule)
	assert.Equal(t, "./backups", cfg.Migration.BackupDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.JWT.Secret = "s"
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.JWT.Secret = ""
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.JWT.Secret = "s"
	cfg.Redis.Enabled = true
	cfg.Redis.Addresses = nil
	assert.Error(t, cfg.Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", c.URL())
}
