package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

var (
	ErrNotFound = errors.New("target not found")
	ErrDisabled = errors.New("storage disabled")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": Postgres database at DSN
//   - "memory": in-memory (volatile; tests and dry runs)
type Config struct {
	Driver string
	Path   string
	DSN    string

	BusyTimeout time.Duration // sqlite only; 0 means default

	// OutcomeRetention bounds the delivery outcome log. Outcomes older
	// than this are removed by PruneOutcomes. 0 keeps everything.
	OutcomeRetention time.Duration
}

// Store is the persistence API consumed by the engine.
//
// Targets are owned by their tenant; the engine writes only the
// last-seen marker and the resolved feed id. Outcomes are append-only.
type Store interface {
	ListEligibleTargets(ctx context.Context, platform watch.Platform) ([]watch.Target, error)
	GetTarget(ctx context.Context, id string) (*watch.Target, error)
	CreateTarget(ctx context.Context, t *watch.Target) error
	UpdateTarget(ctx context.Context, t *watch.Target) error
	DeleteTarget(ctx context.Context, id string) error
	CountTargets(ctx context.Context, tenantID string) (int, error)

	UpdateMarker(ctx context.Context, targetID, marker string) error
	UpdateResolvedFeedID(ctx context.Context, targetID, feedID string) error

	AppendDeliveryOutcome(ctx context.Context, o watch.DeliveryOutcome) error
	RecentOutcomes(ctx context.Context, targetID string, limit int) ([]watch.DeliveryOutcome, error)
	PruneOutcomes(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "pgx":
		return openPostgres(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
