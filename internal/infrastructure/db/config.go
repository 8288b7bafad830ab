package db

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omegaprime/omegaledger/internal/ledger"
)

// AppConfig represents the overall application configuration: database,
// regime cache, auto-confirm worker, ops listener, and the operator
// credential table used for negotiation responses.
type AppConfig struct {
	Database Config                       `yaml:"database"`
	Cache    CacheSection                 `yaml:"cache"`
	Worker   WorkerSection                `yaml:"worker"`
	Ops      OpsSection                   `yaml:"ops"`
	Users    map[string]ledger.Credential `yaml:"users"`
}

// CacheSection holds regime memory cache configuration
type CacheSection struct {
	Redis struct {
		Addr              string `yaml:"addr"`
		DB                int    `yaml:"db"`
		DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
	} `yaml:"redis"`
}

// TTL returns the cache TTL as a duration.
func (c CacheSection) TTL() time.Duration {
	if c.Redis.DefaultTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.DefaultTTLSeconds) * time.Second
}

// WorkerSection holds the auto-confirm sweep policy
type WorkerSection struct {
	// Window is how long a proposed round may wait for a human before the
	// sweeper auto-confirms it.
	Window time.Duration `yaml:"window"`
	// SweepInterval is the cadence of the sweep loop.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// SweepRate caps auto-confirm writes per second.
	SweepRate float64 `yaml:"sweep_rate"`
	// SweepBurst is the rate limiter burst capacity.
	SweepBurst int `yaml:"sweep_burst"`
	// BatchLimit bounds how many pending rounds one sweep picks up.
	BatchLimit int `yaml:"batch_limit"`
}

// OpsSection holds the metrics/health listener configuration
type OpsSection struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoadAppConfig loads application configuration from YAML file with
// environment variable overrides
func LoadAppConfig(configPath string) (*AppConfig, error) {
	var config AppConfig

	// Load from YAML file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}

			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	// Apply environment variable overrides for database config
	applyEnvOverrides(&config.Database)

	// Set defaults if not specified
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = 10
	}
	if config.Database.MaxIdleConns == 0 {
		config.Database.MaxIdleConns = 5
	}
	if config.Database.ConnMaxLifetime == 0 {
		config.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if config.Database.ConnMaxIdleTime == 0 {
		config.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if config.Database.QueryTimeout == 0 {
		config.Database.QueryTimeout = 30 * time.Second
	}
	if config.Worker.Window == 0 {
		config.Worker.Window = 15 * time.Minute
	}
	if config.Worker.SweepInterval == 0 {
		config.Worker.SweepInterval = time.Minute
	}
	if config.Worker.SweepRate == 0 {
		config.Worker.SweepRate = 10
	}
	if config.Worker.SweepBurst == 0 {
		config.Worker.SweepBurst = 5
	}
	if config.Worker.BatchLimit == 0 {
		config.Worker.BatchLimit = 100
	}
	if config.Ops.Host == "" {
		config.Ops.Host = "127.0.0.1" // Local-only by default
	}
	if config.Ops.Port == 0 {
		config.Ops.Port = 8091
	}

	return &config, nil
}

// applyEnvOverrides applies environment variable overrides to database config
func applyEnvOverrides(config *Config) {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		config.DSN = dsn
		config.Enabled = true
	}
	if v := os.Getenv("PG_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			config.Enabled = enabled
		}
	}
	if v := os.Getenv("PG_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxOpenConns = n
		}
	}
	if v := os.Getenv("PG_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxIdleConns = n
		}
	}
	if v := os.Getenv("PG_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.QueryTimeout = d
		}
	}
}
