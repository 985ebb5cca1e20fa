package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "DATABASE_URL", "AUTH_JWT_SECRET", "DEFAULT_CURRENCY", "LOG_LEVEL", "DB_MAX_CONNS",
	"BOOTSTRAP_ADMIN_ID", "BOOTSTRAP_ADMIN_EMAIL", "BOOTSTRAP_ADMIN_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	clearEnv(t)
	path := writeEnv(t, "DATABASE_URL=postgres://lab@localhost/cafe\nAUTH_JWT_SECRET='s3cret'\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres://lab@localhost/cafe", cfg.DatabaseURL)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.Nil(t, cfg.BootstrapAdmin)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	clearEnv(t)
	path := writeEnv(t, "PORT=9000\nDATABASE_URL=postgres://file\nAUTH_JWT_SECRET=file\nLOG_LEVEL=debug\n")
	t.Setenv("PORT", "9100")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("BOOTSTRAP_ADMIN_ID", "u-root")
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "root@lab.test")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	require.NotNil(t, cfg.BootstrapAdmin)
	assert.Equal(t, "Administrator", cfg.BootstrapAdmin.DisplayName)
}

func TestLoadFileErrors(t *testing.T) {
	cases := []struct {
		name string
		env  string
		want string
	}{
		{"missing database", "AUTH_JWT_SECRET=x\n", "DATABASE_URL is required"},
		{"missing secret", "DATABASE_URL=postgres://x\n", "AUTH_JWT_SECRET is required"},
		{"bad port", "DATABASE_URL=postgres://x\nAUTH_JWT_SECRET=x\nPORT=abc\n", "invalid PORT"},
		{"bad level", "DATABASE_URL=postgres://x\nAUTH_JWT_SECRET=x\nLOG_LEVEL=loud\n", "invalid LOG_LEVEL"},
		{"bad conns", "DATABASE_URL=postgres://x\nAUTH_JWT_SECRET=x\nDB_MAX_CONNS=0\n", "invalid DB_MAX_CONNS"},
		{"admin without email", "DATABASE_URL=postgres://x\nAUTH_JWT_SECRET=x\nBOOTSTRAP_ADMIN_ID=u1\n", "BOOTSTRAP_ADMIN_EMAIL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFile(writeEnv(t, tc.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMissingFileFallsBackToEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("AUTH_JWT_SECRET", "env")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.DatabaseURL)
}
