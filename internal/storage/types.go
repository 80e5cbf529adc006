package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config configures storage.
//
// Driver values: "sqlite", "file", "memory". Empty means "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence contract used by the reminder engine.
//
// Put is an upsert of every pair in kv and is applied atomically.
type Store interface {
	Load(ctx context.Context) (map[string]string, error)
	Put(ctx context.Context, kv map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
