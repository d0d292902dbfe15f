package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no record exists for a key.
var ErrNotFound = errors.New("record not found")

// Record is one durable keyed document. Value is an opaque JSON payload
// owned by the writer (installation state, terminal execution records).
type Record struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Store is a minimal durable key-value record store. Implementations must
// be safe for concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) (Record, error)
	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all records whose key starts with prefix, oldest first.
	List(ctx context.Context, prefix string) ([]Record, error)
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Type string `toml:"type" mapstructure:"type"` // "sqlite" or "postgres"
	Path string `toml:"path" mapstructure:"path"` // sqlite database file
	DSN  string `toml:"dsn" mapstructure:"dsn"`   // postgres connection string
}
