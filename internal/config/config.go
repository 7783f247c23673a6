package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort       = "8080"
	DefaultMaxPending = 10000
)

// Config holds the settings of the hiway binaries.
type Config struct {
	Port       string `yaml:"port"`
	LogLevel   string `yaml:"log_level"`
	DBURL      string `yaml:"db_url"`      // Postgres journal
	SQLitePath string `yaml:"sqlite_path"` // SQLite journal
	MaxPending int    `yaml:"max_pending"` // Entries held for unbound runs
}

// Load reads .env (if present), then the optional YAML file at path, then
// HIWAY_* and LOG_LEVEL environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:       DefaultPort,
		LogLevel:   "INFO",
		MaxPending: DefaultMaxPending,
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if v := os.Getenv("HIWAY_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HIWAY_DB_URL"); v != "" {
		cfg.DBURL = v
	}
	if v := os.Getenv("HIWAY_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("HIWAY_MAX_PENDING"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrap(err, "HIWAY_MAX_PENDING")
		}
		cfg.MaxPending = n
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.Errorf("port %q is not numeric", c.Port)
	}
	if c.MaxPending < 0 {
		return errors.New("max_pending must not be negative")
	}
	if c.DBURL != "" && c.SQLitePath != "" {
		return errors.New("configure either db_url or sqlite_path, not both")
	}
	return nil
}
