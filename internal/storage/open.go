package storage

import (
	"fmt"
	"strings"

	logx "reminderd/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if Volatile(driver) {
		log.Warn("memory storage selected; reminder state will not survive a restart", logx.String("driver", driver))
		return NewMemory(), nil
	}
	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// Volatile reports whether driver keeps state only in process memory.
func Volatile(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory", "none":
		return true
	}
	return false
}
