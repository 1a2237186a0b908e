package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/statevault/statevault/internal/platform/errors"
	"github.com/statevault/statevault/internal/services/state/storage"
)

const recordColumns = "kind, id, data, created_at, updated_at, expires_at"

// fieldNamePattern restricts secondary lookup fields to plain identifiers so
// a field name can never rewrite the JSON path expression.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateKindID(kind, id string) error {
	if strings.TrimSpace(kind) == "" {
		return errors.New(errors.CodeInvalidArgument, "record kind is required")
	}
	if strings.TrimSpace(id) == "" {
		return errors.New(errors.CodeInvalidArgument, "record id is required")
	}
	return nil
}

func validateField(field string) error {
	if !fieldNamePattern.MatchString(field) {
		return errors.WithMetadata(errors.CodeInvalidArgument, "invalid lookup field", map[string]string{
			"field": field,
		})
	}
	return nil
}

// Upsert inserts a new row or overwrites an existing one's payload.
//
// created_at survives overwrites; updated_at is only populated once a row has
// actually been updated. A nil ttl leaves expires_at unset; any non-nil ttl,
// zero and negative included, sets expires_at = now + ttl so an immediate
// expiry is stored rather than rejected.
func (s *Store) Upsert(ctx context.Context, kind, id string, data []byte, ttl *time.Duration) error {
	if err := validateKindID(kind, id); err != nil {
		return err
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return errors.New(errors.CodeInvalidArgument, "record payload must be a JSON object")
	}

	now := s.now()
	var expiresAt sql.NullInt64
	if ttl != nil {
		expiresAt = sql.NullInt64{Int64: toMillis(now.Add(*ttl)), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO records (kind, id, data, created_at, updated_at, expires_at)
VALUES (?, ?, ?, ?, NULL, ?)
ON CONFLICT(kind, id) DO UPDATE SET
	data = excluded.data,
	updated_at = ?,
	expires_at = excluded.expires_at`,
		kind, id, string(data), toMillis(now), expiresAt, toMillis(now),
	)
	if err != nil {
		return errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("upsert record %s/%s", kind, id), err)
	}

	s.notifyWrite()
	return nil
}

// Find returns the record when it exists and has not reached its expiration
// instant. Visibility is enforced here so correctness never depends on sweep
// timing.
func (s *Store) Find(ctx context.Context, kind, id string) (storage.Record, error) {
	if err := validateKindID(kind, id); err != nil {
		return storage.Record{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM records
WHERE kind = ? AND id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		kind, id, toMillis(s.now()),
	)
	return scanRecord(row)
}

// FindByField returns the visible record whose payload structurally contains
// {field: value}. Multiple matches resolve to the newest created_at, with the
// higher id breaking exact ties.
func (s *Store) FindByField(ctx context.Context, kind, field, value string) (storage.Record, error) {
	if strings.TrimSpace(kind) == "" {
		return storage.Record{}, errors.New(errors.CodeInvalidArgument, "record kind is required")
	}
	if err := validateField(field); err != nil {
		return storage.Record{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM records
WHERE kind = ?
  AND json_extract(data, '$.' || ?) = ?
  AND (expires_at IS NULL OR expires_at > ?)
ORDER BY created_at DESC, id DESC
LIMIT 1`,
		kind, field, value, toMillis(s.now()),
	)
	return scanRecord(row)
}

// Consume stamps the consumed marker into the payload and returns the updated
// record. Expiration is deliberately ignored: a consume is an intentional
// read-modify-write, unlike Find. Missing rows are an error, not a no-op.
func (s *Store) Consume(ctx context.Context, kind, id string) (storage.Record, error) {
	if err := validateKindID(kind, id); err != nil {
		return storage.Record{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+recordColumns+` FROM records WHERE kind = ? AND id = ?`,
		kind, id,
	)
	record, err := scanRecord(row)
	if err != nil {
		return storage.Record{}, err
	}

	now := s.now()
	updated, err := sjson.SetBytes(record.Data, storage.ConsumedField, now.Unix())
	if err != nil {
		return storage.Record{}, errors.Wrap(errors.CodeUnknown, "set consumed marker", err)
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
UPDATE records SET data = ?, updated_at = ? WHERE kind = ? AND id = ?`,
		string(updated), toMillis(now), kind, id,
	); err != nil {
		return storage.Record{}, errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("consume record %s/%s", kind, id), err)
	}

	record.Data = updated
	updatedAt := fromMillis(toMillis(now))
	record.UpdatedAt = &updatedAt
	return record, nil
}

// Destroy deletes by id. It is idempotent: deleting an absent row succeeds.
func (s *Store) Destroy(ctx context.Context, kind, id string) error {
	if err := validateKindID(kind, id); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM records WHERE kind = ? AND id = ?`, kind, id,
	); err != nil {
		return errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("destroy record %s/%s", kind, id), err)
	}
	return nil
}

// DeleteByField removes every row containing {field: value}, expired or not.
// Cascade revocation by grant id rides on this.
func (s *Store) DeleteByField(ctx context.Context, kind, field, value string) (int64, error) {
	if strings.TrimSpace(kind) == "" {
		return 0, errors.New(errors.CodeInvalidArgument, "record kind is required")
	}
	if err := validateField(field); err != nil {
		return 0, err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM records WHERE kind = ? AND json_extract(data, '$.' || ?) = ?`,
		kind, field, value,
	)
	if err != nil {
		return 0, errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("delete records %s by %s", kind, field), err)
	}
	return result.RowsAffected()
}

// listOrderColumns whitelists sortable columns for List.
var listOrderColumns = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	// Rows that were never updated sort by their insertion time.
	"updated_at": "COALESCE(updated_at, created_at)",
	"expires_at": "expires_at",
}

// List returns rows without expiration filtering; it serves administrative
// inspection, not the protocol contract.
func (s *Store) List(ctx context.Context, kind string, opts storage.ListOptions) ([]storage.Record, error) {
	if strings.TrimSpace(kind) == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "record kind is required")
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "updated_at"
	}
	orderExpr, ok := listOrderColumns[orderBy]
	if !ok {
		return nil, errors.WithMetadata(errors.CodeInvalidArgument, "invalid order column", map[string]string{
			"order_by": opts.OrderBy,
		})
	}
	direction := "DESC"
	if opts.Ascending {
		direction = "ASC"
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE kind = ?`
	args := []any{kind}
	if len(opts.IDs) > 0 {
		placeholders := strings.Repeat("?, ", len(opts.IDs))
		query += ` AND id IN (` + placeholders[:len(placeholders)-2] + `)`
		for _, id := range opts.IDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY ` + orderExpr + ` ` + direction + `, id ` + direction

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("list records %s", kind), err)
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("list records %s", kind), err)
	}
	return records, nil
}

// DestroyAll wipes the namespace.
func (s *Store) DestroyAll(ctx context.Context, kind string) error {
	if strings.TrimSpace(kind) == "" {
		return errors.New(errors.CodeInvalidArgument, "record kind is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM records WHERE kind = ?`, kind,
	); err != nil {
		return errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("destroy all records %s", kind), err)
	}
	return nil
}

// DeleteExpired reclaims rows whose expiration instant is at or before now.
// Durable rows (expires_at IS NULL) are never touched.
func (s *Store) DeleteExpired(ctx context.Context, kind string, now time.Time) (int64, error) {
	if strings.TrimSpace(kind) == "" {
		return 0, errors.New(errors.CodeInvalidArgument, "record kind is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM records WHERE kind = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		kind, toMillis(now),
	)
	if err != nil {
		return 0, errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("delete expired records %s", kind), err)
	}
	return result.RowsAffected()
}

// Stats aggregates rows still visible at now.
func (s *Store) Stats(ctx context.Context, kind string, now time.Time) (storage.KindStats, error) {
	if strings.TrimSpace(kind) == "" {
		return storage.KindStats{}, errors.New(errors.CodeInvalidArgument, "record kind is required")
	}

	var count int64
	var oldest, newest sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*), MIN(created_at), MAX(created_at)
FROM records
WHERE kind = ? AND (expires_at IS NULL OR expires_at > ?)`,
		kind, toMillis(now),
	).Scan(&count, &oldest, &newest)
	if err != nil {
		return storage.KindStats{}, errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("stat records %s", kind), err)
	}

	stats := storage.KindStats{Kind: kind, LiveCount: count}
	if oldest.Valid {
		value := fromMillis(oldest.Int64)
		stats.OldestCreatedAt = &value
	}
	if newest.Valid {
		value := fromMillis(newest.Int64)
		stats.NewestCreatedAt = &value
	}
	return stats, nil
}

type recordScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scan recordScanner) (storage.Record, error) {
	var record storage.Record
	var data string
	var createdAt int64
	var updatedAt, expiresAt sql.NullInt64
	if err := scan.Scan(&record.Kind, &record.ID, &data, &createdAt, &updatedAt, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return storage.Record{}, storage.ErrNotFound
		}
		return storage.Record{}, errors.Wrap(errors.CodeStorageUnavailable, "scan record", err)
	}
	record.Data = []byte(data)
	record.CreatedAt = fromMillis(createdAt)
	if updatedAt.Valid {
		value := fromMillis(updatedAt.Int64)
		record.UpdatedAt = &value
	}
	if expiresAt.Valid {
		value := fromMillis(expiresAt.Int64)
		record.ExpiresAt = &value
	}
	return record, nil
}
