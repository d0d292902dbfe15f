package factory

import (
	"fmt"

	"github.com/meterdock/meterdock/internal/store"
	"github.com/meterdock/meterdock/internal/store/postgres"
	"github.com/meterdock/meterdock/internal/store/sqlite"
)

// New builds a store.Store from config. Supported types: "sqlite" (default)
// and "postgres".
func New(cfg store.Config) (store.Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			return nil, fmt.Errorf("sqlite store requires path")
		}
		return sqlite.New(path)
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres store requires dsn")
		}
		return postgres.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
