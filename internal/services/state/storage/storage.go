package storage

import (
	"context"
	"time"

	"github.com/statevault/statevault/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing or no longer visible.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ConsumedField is the payload field set by Consume. It holds a Unix epoch
// second and is never cleared once written.
const ConsumedField = "consumed"

// Record is one stored row within a namespace.
type Record struct {
	Kind      string
	ID        string
	Data      []byte // JSON object, opaque to the store
	CreatedAt time.Time
	UpdatedAt *time.Time // nil until the first update
	ExpiresAt *time.Time // nil means the record never expires
}

// Expired reports whether the record is past its expiration instant.
// Records without an expiration never expire.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// ListOptions narrows and orders List results.
type ListOptions struct {
	// IDs restricts results to the given ids when non-empty.
	IDs []string
	// OrderBy names the sort column: id, created_at, updated_at or expires_at.
	// Empty means updated_at.
	OrderBy string
	// Ascending flips the default descending order.
	Ascending bool
}

// KindStats aggregates live rows for one namespace.
type KindStats struct {
	Kind            string
	LiveCount       int64
	OldestCreatedAt *time.Time
	NewestCreatedAt *time.Time
}

// WriteObserver is notified of successful write-path operations.
//
// The purge scheduler implements this to count writes; read-path calls never
// reach it.
type WriteObserver interface {
	RecordWrite()
}

// RecordStore is the type-scoped keyed store with expiration-aware reads.
//
// Reads (Find, FindByField) never return a record at or past its expiration
// instant, regardless of whether the row has been physically reclaimed.
// List ignores expiration; it is an administrative surface.
type RecordStore interface {
	// Upsert inserts or overwrites the record's payload. A nil ttl leaves the
	// record durable; any other ttl, including zero or negative, sets
	// expires_at = now + ttl.
	Upsert(ctx context.Context, kind, id string, data []byte, ttl *time.Duration) error
	// Find returns a visible record or ErrNotFound.
	Find(ctx context.Context, kind, id string) (Record, error)
	// FindByField returns the visible record whose payload contains
	// {field: value}. When several rows match, the newest created_at wins,
	// with the higher id breaking exact ties.
	FindByField(ctx context.Context, kind, field, value string) (Record, error)
	// Consume sets the consumed marker inside the payload, ignoring
	// expiration. It returns ErrNotFound when no row exists.
	Consume(ctx context.Context, kind, id string) (Record, error)
	// Destroy deletes by id. Deleting a missing id is not an error.
	Destroy(ctx context.Context, kind, id string) error
	// DeleteByField deletes every row whose payload contains {field: value},
	// expired or not, and returns the number of rows removed.
	DeleteByField(ctx context.Context, kind, field, value string) (int64, error)
	// List returns rows without expiration filtering.
	List(ctx context.Context, kind string, opts ListOptions) ([]Record, error)
	// DestroyAll wipes the namespace.
	DestroyAll(ctx context.Context, kind string) error
	// DeleteExpired reclaims rows with expires_at at or before now.
	DeleteExpired(ctx context.Context, kind string, now time.Time) (int64, error)
	// Stats aggregates rows still visible at now.
	Stats(ctx context.Context, kind string, now time.Time) (KindStats, error)
}
