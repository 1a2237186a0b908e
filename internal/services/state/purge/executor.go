package purge

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/statevault/statevault/internal/platform/errors"
	"github.com/statevault/statevault/internal/platform/id"
	"github.com/statevault/statevault/internal/services/state/registry"
	"github.com/statevault/statevault/internal/services/state/storage"
)

const tracerName = "statevault/purge"

// TypeStats aggregates live rows for one volatile type.
type TypeStats struct {
	Type            string     `json:"type"`
	LiveCount       int64      `json:"live_count"`
	OldestCreatedAt *time.Time `json:"oldest_created_at,omitempty"`
	NewestCreatedAt *time.Time `json:"newest_created_at,omitempty"`
}

// Executor deletes expired rows across every volatile type.
type Executor struct {
	store  storage.RecordStore
	reg    *registry.Registry
	tracer trace.Tracer
}

// NewExecutor binds an executor to a record store and type registry.
func NewExecutor(store storage.RecordStore, reg *registry.Registry) *Executor {
	return &Executor{
		store:  store,
		reg:    reg,
		tracer: otel.Tracer(tracerName),
	}
}

// Sweep deletes rows with expires_at at or before now from every volatile
// namespace and returns deleted counts keyed by logical type name.
//
// Per-type deletions run concurrently and independently: a failure in one
// namespace never stops the others, and there is no cross-type transaction.
// Rows missed by a failed deletion stay invisible to reads and are
// reclaimable by the next sweep, so partial completion is tolerated. Failures
// are aggregated into a single PARTIAL_SWEEP error.
func (e *Executor) Sweep(ctx context.Context, now time.Time) (map[string]int64, error) {
	sweepID, err := id.NewID()
	if err != nil {
		log.Printf("generate sweep id: %v", err)
	}
	ctx, span := e.tracer.Start(ctx, "purge.Sweep")
	defer span.End()
	span.SetAttributes(attribute.String("purge.sweep_id", sweepID))

	types := e.reg.Volatile()
	deleted := make(map[string]int64, len(types))
	failures := make([]error, 0)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, typ := range types {
		wg.Add(1)
		go func(typ registry.Type) {
			defer wg.Done()
			count, err := e.store.DeleteExpired(ctx, typ.Namespace, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Errorf("sweep %s: %w", typ.Name, err))
				return
			}
			deleted[typ.Name] = count
		}(typ)
	}
	wg.Wait()

	var total int64
	for _, count := range deleted {
		total += count
	}
	span.SetAttributes(
		attribute.Int64("purge.deleted", total),
		attribute.Int("purge.failed_types", len(failures)),
	)

	if len(failures) > 0 {
		err := errors.Wrap(errors.CodePartialSweep, "sweep incomplete", stderrors.Join(failures...))
		err.Metadata = map[string]string{"sweep_id": sweepID}
		return deleted, err
	}
	return deleted, nil
}

// StatsByType reports live row aggregates per volatile type. It is a
// diagnostic surface and ignores the scheduler's cooldown entirely.
func (e *Executor) StatsByType(ctx context.Context, now time.Time) ([]TypeStats, error) {
	types := e.reg.Volatile()
	stats := make([]TypeStats, 0, len(types))
	for _, typ := range types {
		kindStats, err := e.store.Stats(ctx, typ.Namespace, now)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", typ.Name, err)
		}
		stats = append(stats, TypeStats{
			Type:            typ.Name,
			LiveCount:       kindStats.LiveCount,
			OldestCreatedAt: kindStats.OldestCreatedAt,
			NewestCreatedAt: kindStats.NewestCreatedAt,
		})
	}
	return stats, nil
}

// WipeAllVolatile unconditionally empties every volatile namespace. Durable
// types are untouched.
func (e *Executor) WipeAllVolatile(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "purge.WipeAllVolatile")
	defer span.End()

	var failures []error
	for _, typ := range e.reg.Volatile() {
		if err := e.store.DestroyAll(ctx, typ.Namespace); err != nil {
			failures = append(failures, fmt.Errorf("wipe %s: %w", typ.Name, err))
		}
	}
	if len(failures) > 0 {
		return errors.Wrap(errors.CodePartialSweep, "wipe incomplete", stderrors.Join(failures...))
	}
	return nil
}
