package storage

import (
	"context"
	"fmt"
	"strings"

	"listingwatch/internal/listing"
	logx "listingwatch/pkg/logx"
)

// Store is the durable listing history.
type Store interface {
	// Load returns the committed records in commit order.
	// It returns an empty slice (not an error) when there is no prior state.
	Load(ctx context.Context) ([]listing.Record, error)
	// Save replaces the committed history with records. It is atomic:
	// either the new history is committed or the previous one stays intact.
	Save(ctx context.Context, records []listing.Record) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
