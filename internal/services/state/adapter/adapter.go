// Package adapter exposes the per-type surface consumed by the protocol layer.
//
// Each Adapter pins one logical record type, translating logical names into
// physical namespaces and turning storage sentinels into the absence values
// the protocol contract expects.
package adapter

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/statevault/statevault/internal/services/state/registry"
	"github.com/statevault/statevault/internal/services/state/storage"
)

// The two payload fields the protocol looks records up by. Payloads are
// otherwise opaque; these names are a convention, not columns.
const (
	FieldUID      = "uid"
	FieldUserCode = "userCode"
	FieldGrantID  = "grantId"
)

// Adapter binds the record store to one logical type.
type Adapter struct {
	store storage.RecordStore
	typ   registry.Type
}

// New returns an adapter for the named logical type.
func New(store storage.RecordStore, reg *registry.Registry, typeName string) (*Adapter, error) {
	typ, ok := reg.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", typeName)
	}
	return &Adapter{store: store, typ: typ}, nil
}

// Type returns the bound type.
func (a *Adapter) Type() registry.Type {
	return a.typ
}

// Upsert stores the payload under id. A nil ttl makes the record durable;
// any other ttl, zero and negative included, sets an expiration instant.
func (a *Adapter) Upsert(ctx context.Context, id string, payload []byte, ttl *time.Duration) error {
	return a.store.Upsert(ctx, a.typ.Namespace, id, payload, ttl)
}

// Find returns the payload when the record exists and is unexpired. Absence
// is (nil, false, nil), not an error.
func (a *Adapter) Find(ctx context.Context, id string) ([]byte, bool, error) {
	record, err := a.store.Find(ctx, a.typ.Namespace, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record.Data, true, nil
}

// FindByUID looks the record up by the conventional uid payload field.
func (a *Adapter) FindByUID(ctx context.Context, uid string) ([]byte, bool, error) {
	return a.findByField(ctx, FieldUID, uid)
}

// FindByUserCode looks the record up by the conventional userCode payload field.
func (a *Adapter) FindByUserCode(ctx context.Context, userCode string) ([]byte, bool, error) {
	return a.findByField(ctx, FieldUserCode, userCode)
}

func (a *Adapter) findByField(ctx context.Context, field, value string) ([]byte, bool, error) {
	record, err := a.store.FindByField(ctx, a.typ.Namespace, field, value)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record.Data, true, nil
}

// Consume marks the record consumed. Unlike Find, a missing record is an
// error: consuming requires the record to exist.
func (a *Adapter) Consume(ctx context.Context, id string) error {
	_, err := a.store.Consume(ctx, a.typ.Namespace, id)
	return err
}

// Destroy removes the record; destroying a missing id succeeds.
func (a *Adapter) Destroy(ctx context.Context, id string) error {
	return a.store.Destroy(ctx, a.typ.Namespace, id)
}

// RevokeByGrantID removes every record of this type tied to the grant,
// regardless of expiration state.
func (a *Adapter) RevokeByGrantID(ctx context.Context, grantID string) error {
	_, err := a.store.DeleteByField(ctx, a.typ.Namespace, FieldGrantID, grantID)
	return err
}
