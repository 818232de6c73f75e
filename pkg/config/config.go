package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvStoreURL         = "TABLETOP_STORE_URL"
	EnvStoreAPIKey      = "TABLETOP_STORE_API_KEY"
	EnvStoreTimeout     = "TABLETOP_STORE_TIMEOUT"
	EnvAutosaveInterval = "TABLETOP_AUTOSAVE_INTERVAL"
	EnvAllowedOrigins   = "TABLETOP_ALLOWED_ORIGINS"
	EnvTLSCertFile      = "TABLETOP_TLS_CERT_FILE"
	EnvTLSKeyFile       = "TABLETOP_TLS_KEY_FILE"
	EnvAdminToken       = "TABLETOP_ADMIN_TOKEN"
)

const (
	DefaultStoreURL         = "sqlite://tabletop.db"
	DefaultStoreTimeout     = 10 * time.Second
	DefaultAutosaveInterval = 60 * time.Second
)

// Config is the server configuration read from the environment.
type Config struct {
	StoreURL         string
	StoreAPIKey      string
	StoreTimeout     time.Duration
	AutosaveInterval time.Duration
	AllowedOrigins   []string
	TLSCertFile      string
	TLSKeyFile       string
	// AdminToken is the bearer token for /api. Empty disables the admin API.
	AdminToken       string
}

// Load reads envFile if it exists and then the environment.
// Variables already set in the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %v", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		StoreURL:         getenv(EnvStoreURL),
		StoreAPIKey:      getenv(EnvStoreAPIKey),
		StoreTimeout:     DefaultStoreTimeout,
		AutosaveInterval: DefaultAutosaveInterval,
		AllowedOrigins:   splitList(getenv(EnvAllowedOrigins)),
		TLSCertFile:      getenv(EnvTLSCertFile),
		TLSKeyFile:       getenv(EnvTLSKeyFile),
		AdminToken:       getenv(EnvAdminToken),
	}
	if cfg.StoreURL == "" {
		cfg.StoreURL = DefaultStoreURL
	}

	var err error
	if cfg.StoreTimeout, err = parseDuration(getenv, EnvStoreTimeout, DefaultStoreTimeout); err != nil {
		return nil, err
	}
	if cfg.AutosaveInterval, err = parseDuration(getenv, EnvAutosaveInterval, DefaultAutosaveInterval); err != nil {
		return nil, err
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("%s and %s must be set together", EnvTLSCertFile, EnvTLSKeyFile)
	}
	return cfg, nil
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
