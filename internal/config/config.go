package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/upreach/ruleengine/rules"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDir      = "dir"
)

// Config is the host service configuration. The engine itself takes no
// configuration; everything here wires the service around it.
type Config struct {
	Server        ServerConfig         `yaml:"server"`
	Store         StoreConfig          `yaml:"store"`
	DerivedFields []rules.DerivedField `yaml:"derived_fields"`
	Logging       LoggingConfig        `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

type StoreConfig struct {
	// Backend selects where rule documents live: memory, postgres, or
	// dir (a watched directory of JSON files).
	Backend     string        `yaml:"backend"`
	DatabaseURL string        `yaml:"database_url"`
	RulesDir    string        `yaml:"rules_dir"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, applies defaults, then
// environment overrides, then validates. An empty path yields a
// default configuration (still subject to env overrides).
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
}

// Environment variables follow RULEENGINE_SECTION_FIELD and always win
// over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RULEENGINE_SERVER_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.ListenAddress = ":" + v
	}
	if v := os.Getenv("RULEENGINE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv("RULEENGINE_STORE_RULES_DIR"); v != "" {
		cfg.Store.RulesDir = v
	}
	if v := os.Getenv("RULEENGINE_STORE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.CacheTTL = d
		}
	}
	if v := os.Getenv("RULEENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Store.DatabaseURL == "" {
			return fmt.Errorf("store backend %q requires database_url (or DATABASE_URL)", BackendPostgres)
		}
	case BackendDir:
		if cfg.Store.RulesDir == "" {
			return fmt.Errorf("store backend %q requires rules_dir", BackendDir)
		}
	default:
		return fmt.Errorf("unknown store backend %q (want memory, postgres, or dir)", cfg.Store.Backend)
	}

	for i, field := range cfg.DerivedFields {
		if field.Name == "" {
			return fmt.Errorf("derived_fields[%d]: name is required", i)
		}
		if field.Expression == "" {
			return fmt.Errorf("derived field %q: expression is required", field.Name)
		}
	}

	if _, err := strconv.Atoi(cfg.Server.ListenAddress); err == nil {
		// A bare port number is a common mistake; require ":8080" form.
		return fmt.Errorf("listen_address %q must include a colon, e.g. \":%s\"",
			cfg.Server.ListenAddress, cfg.Server.ListenAddress)
	}

	return nil
}
