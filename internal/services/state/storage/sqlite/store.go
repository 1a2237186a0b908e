package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/statevault/statevault/internal/platform/storage/sqlitemigrate"
	"github.com/statevault/statevault/internal/services/state/storage"
	_ "modernc.org/sqlite"

	"github.com/statevault/statevault/internal/services/state/storage/sqlite/migrations"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements record persistence over SQLite.
//
// A single SQLite file backs every namespace so protocol state shares one
// set of transaction and visibility boundaries.
type Store struct {
	sqlDB    *sql.DB
	clock    func() time.Time
	observer storage.WriteObserver
}

// Option adjusts store construction.
type Option func(*Store)

// WithClock overrides the time source used for visibility decisions.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithWriteObserver registers the observer notified after each successful
// write-path call.
func WithWriteObserver(observer storage.WriteObserver) Option {
	return func(s *Store) {
		s.observer = observer
	}
}

// Open opens a record store and applies bundled migrations.
//
// This keeps startup and schema evolution in one place, instead of requiring
// callers to coordinate migrations independently.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer connection: SQLite serializes writes anyway, and a single
	// pooled connection keeps concurrent bulk deletes from hitting SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{
		sqlDB: sqlDB,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// DB returns the raw database handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SetWriteObserver swaps the write observer after construction. The store and
// the purge scheduler reference each other, so one side has to be attached
// late.
func (s *Store) SetWriteObserver(observer storage.WriteObserver) {
	if s == nil {
		return
	}
	s.observer = observer
}

// runMigrations applies embedded DDL snapshots for known schema versions.
func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Store) notifyWrite() {
	if s.observer != nil {
		s.observer.RecordWrite()
	}
}

var _ storage.RecordStore = (*Store)(nil)
