package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port            int
	DatabaseURL     string
	JWTSecret       string
	DefaultCurrency string
	LogLevel        logrus.Level
	DBMaxConns      int32
	BootstrapAdmin  *BootstrapAdmin
}

// BootstrapAdmin is the administrator ensured on boot.
type BootstrapAdmin struct {
	ID          string
	Email       string
	DisplayName string
}

func Load() (Config, error) {
	return LoadFile(filepath.Join(".", ".env"))
}

// LoadFile reads the environment, falling back to the dotenv file at envPath.
// A missing file is not an error; process environment always wins.
func LoadFile(envPath string) (Config, error) {
	values := map[string]string{}
	fileValues, err := godotenv.Read(envPath)
	switch {
	case err == nil:
		values = fileValues
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", envPath, err)
	}
	get := func(key string) string {
		return firstNonEmpty(os.Getenv(key), values[key])
	}

	cfg := Config{
		Port:            8080,
		DefaultCurrency: "USD",
		LogLevel:        logrus.InfoLevel,
		DBMaxConns:      20,
	}
	if portRaw := get("PORT"); portRaw != "" {
		port, err := strconv.Atoi(portRaw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT: %q", portRaw)
		}
		cfg.Port = port
	}

	cfg.DatabaseURL = get("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required (environment variable or .env)")
	}
	cfg.JWTSecret = get("AUTH_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET is required (environment variable or .env)")
	}

	if currency := get("DEFAULT_CURRENCY"); currency != "" {
		if len(currency) != 3 {
			return Config{}, fmt.Errorf("invalid DEFAULT_CURRENCY: %q", currency)
		}
		cfg.DefaultCurrency = strings.ToUpper(currency)
	}

	if levelRaw := get("LOG_LEVEL"); levelRaw != "" {
		level, err := logrus.ParseLevel(levelRaw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %q", levelRaw)
		}
		cfg.LogLevel = level
	}

	if connsRaw := get("DB_MAX_CONNS"); connsRaw != "" {
		conns, err := strconv.ParseInt(connsRaw, 10, 32)
		if err != nil || conns <= 0 {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNS: %q", connsRaw)
		}
		cfg.DBMaxConns = int32(conns)
	}

	if id := get("BOOTSTRAP_ADMIN_ID"); id != "" {
		admin := &BootstrapAdmin{
			ID:          id,
			Email:       get("BOOTSTRAP_ADMIN_EMAIL"),
			DisplayName: firstNonEmpty(get("BOOTSTRAP_ADMIN_NAME"), "Administrator"),
		}
		if admin.Email == "" {
			return Config{}, fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL is required when BOOTSTRAP_ADMIN_ID is set")
		}
		cfg.BootstrapAdmin = admin
	}

	return cfg, nil
}

func firstNonEmpty(candidates ...string) string {
	for _, candidate := range candidates {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return ""
}
