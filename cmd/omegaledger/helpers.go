package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/omegaprime/omegaledger/internal/infrastructure/cache"
	"github.com/omegaprime/omegaledger/internal/infrastructure/db"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

// loadConfig reads the YAML config named by --config plus env overrides.
func loadConfig() (*db.AppConfig, error) {
	config, err := db.LoadAppConfig(configPath)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// openManager connects to Postgres per config. The caller owns Close.
func openManager(config *db.AppConfig) (*db.Manager, error) {
	manager, err := db.NewManager(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if !manager.IsEnabled() {
		manager.Close()
		return nil, fmt.Errorf("database is not enabled; set database.enabled or PG_DSN")
	}
	return manager, nil
}

// regimeStore wraps the regime repository in the configured cache.
func regimeStore(config *db.AppConfig, repos *persistence.Repository) persistence.RegimeRepo {
	return cache.NewRegimeCache(repos.Regimes, cache.Options{
		RedisAddr: config.Cache.Redis.Addr,
		RedisDB:   config.Cache.Redis.DB,
		TTL:       config.Cache.TTL(),
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

// printJSON renders command output as indented JSON on stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
