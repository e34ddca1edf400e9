package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"
)

// Store is the durable TaskStore. A single *sql.DB with a one-connection
// pool backs it (SQLite tolerates exactly one writer at a time); writes are
// additionally serialized with an in-process mutex so retry/backoff
// observes genuine contention rather than racing itself, mirroring
// internal/storage/sqlite's JobStorage in the teacher.
type Store struct {
	db     *sql.DB
	logger arbor.ILogger
	mu     sync.Mutex

	maxRetries   int
	initialDelay time.Duration
}

// Options configures a new Store.
type Options struct {
	Path           string
	ResetOnStartup bool
	MaxRetries     int
	RetryInitialMS int
}

// Open creates (or reuses) the SQLite database at opts.Path, applies the
// schema, and returns a ready Store.
func Open(logger arbor.ILogger, opts Options) (*Store, error) {
	if opts.Path != ":memory:" {
		dir := filepath.Dir(opts.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	if opts.ResetOnStartup && opts.Path != ":memory:" {
		_ = os.Remove(opts.Path)
		_ = os.Remove(opts.Path + "-wal")
		_ = os.Remove(opts.Path + "-shm")
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite does not support concurrent writers; a single connection plus
	// an in-process mutex around writes avoids SQLITE_BUSY storms.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign_keys: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	initialDelay := time.Duration(opts.RetryInitialMS) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = 50 * time.Millisecond
	}

	logger.Info().Str("path", opts.Path).Msg("task store initialized")

	return &Store{
		db:           db,
		logger:       logger,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withRetry(ctx context.Context, op func() error) error {
	return retryWithBackoff(ctx, s.logger, s.maxRetries, s.initialDelay, op)
}
