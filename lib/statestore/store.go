package statestore

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-datastore"
	"golang.org/x/xerrors"
)

// Doc is a dirty-tracked document persisted in a datastore. All mutations go
// through Mutate, which marks the document dirty; Commit writes the document
// back only when dirty and clears the flag. The in-memory value and the
// durable copy converge after every successful Commit.
type Doc[T any] struct {
	ds  datastore.Batching
	key datastore.Key

	val   *T
	dirty bool
}

func NewDoc[T any](ds datastore.Batching, key datastore.Key) *Doc[T] {
	return &Doc[T]{ds: ds, key: key}
}

// Load reads the document from the datastore. It returns false when no
// document exists under the key yet.
func (d *Doc[T]) Load(ctx context.Context) (bool, error) {
	b, err := d.ds.Get(ctx, d.key)
	if err != nil {
		if xerrors.Is(err, datastore.ErrNotFound) {
			return false, nil
		}
		return false, xerrors.Errorf("get %s: %w", d.key, err)
	}

	val := new(T)
	if err := json.Unmarshal(b, val); err != nil {
		return false, xerrors.Errorf("decode %s: %w", d.key, err)
	}

	d.val = val
	d.dirty = false
	return true, nil
}

// Init starts tracking a fresh value. The document is dirty until committed.
func (d *Doc[T]) Init(val *T) error {
	if d.val != nil {
		return xerrors.Errorf("already tracking state for %s", d.key)
	}

	d.val = val
	d.dirty = true
	return nil
}

// Val returns the tracked value for reading. Callers must not mutate it;
// mutations go through Mutate so that Commit is never skipped.
func (d *Doc[T]) Val() *T {
	return d.val
}

func (d *Doc[T]) Mutate(mutator func(*T) error) error {
	if d.val == nil {
		return xerrors.Errorf("no state loaded for %s", d.key)
	}

	if err := mutator(d.val); err != nil {
		return err
	}

	d.dirty = true
	return nil
}

func (d *Doc[T]) Dirty() bool {
	return d.dirty
}

// Commit writes the document if dirty. A clean document is a no-op.
func (d *Doc[T]) Commit(ctx context.Context) error {
	if !d.dirty {
		return nil
	}
	if d.val == nil {
		return xerrors.Errorf("no state loaded for %s", d.key)
	}

	b, err := json.Marshal(d.val)
	if err != nil {
		return xerrors.Errorf("encode %s: %w", d.key, err)
	}

	if err := d.ds.Put(ctx, d.key, b); err != nil {
		return xerrors.Errorf("put %s: %w", d.key, err)
	}

	d.dirty = false
	return nil
}

// Delete removes the document and stops tracking it.
func (d *Doc[T]) Delete(ctx context.Context) error {
	if err := d.ds.Delete(ctx, d.key); err != nil {
		return xerrors.Errorf("delete %s: %w", d.key, err)
	}

	d.val = nil
	d.dirty = false
	return nil
}
