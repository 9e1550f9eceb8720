// Package jsondb implements generic JSON-file-backed keyed tables.
//
// Each table holds a map from a unique key to a value, guarded by one
// RWMutex, and mirrors every committed mutation to a single JSON file.
// Every save rewrites the whole table. That is O(table size) per mutation
// and is a known scaling ceiling, accepted because the target tables stay
// small.
package jsondb

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	apierrors "github.com/dlemaire/picofeed/internal/errors"
)

// Cloner is implemented by types that can clone themselves.
type Cloner[T any] interface {
	Clone() T
}

// AdminToken gates destructive table operations. The only implementation
// lives in the auth package, so holding one proves the caller went through
// privilege escalation.
type AdminToken interface {
	AdminID() uint64
}

// Table handles storage and in-memory caching for a single keyed table.
type Table[K comparable, V Cloner[V]] struct {
	path string

	mu       sync.RWMutex
	poisoned bool
	rows     map[K]V
}

// Load opens the table at path. A missing file or unreadable content yields
// an empty table, never an error: availability over correctness. Malformed
// content is logged and discarded.
func Load[K comparable, V Cloner[V]](path string) *Table[K, V] {
	t := &Table[K, V]{path: path, rows: make(map[K]V)}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read table file, starting empty", "path", path, "err", err)
		}
		return t
	}
	var rows map[K]V
	if err := json.Unmarshal(data, &rows); err != nil {
		slog.Warn("Malformed table file, starting empty", "path", path, "err", err)
		return t
	}
	if rows != nil {
		t.rows = rows
	}
	return t
}

// Path returns the persistence target.
func (t *Table[K, V]) Path() string {
	return t.path
}

func (t *Table[K, V]) name() string {
	return filepath.Base(t.path)
}

// Len returns the number of rows. Returns 0 on a poisoned table.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.poisoned {
		return 0
	}
	return len(t.rows)
}

// Get returns an owned copy of the value at key. Readers never block each
// other. Returns false on a poisoned table.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero V
	if t.poisoned {
		return zero, false
	}
	v, ok := t.rows[key]
	if !ok {
		return zero, false
	}
	return v.Clone(), true
}

// Exists reports whether key is present.
func (t *Table[K, V]) Exists(key K) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.poisoned {
		return false, apierrors.TablePoisoned(t.name())
	}
	_, ok := t.rows[key]
	return ok, nil
}

// Snapshot returns an owned copy of the whole mapping.
func (t *Table[K, V]) Snapshot() (map[K]V, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.poisoned {
		return nil, apierrors.TablePoisoned(t.name())
	}
	rows := make(map[K]V, len(t.rows))
	for k, v := range t.rows {
		rows[k] = v.Clone()
	}
	return rows, nil
}

// Create inserts value at key only if the key is absent, then persists.
// Returns false with a nil error when the key already exists. The persist
// happens after the lock is released: readers can observe the new entry
// before it is durable.
func (t *Table[K, V]) Create(key K, value V) (bool, error) {
	inserted := false
	if err := t.mutate(func(rows map[K]V) {
		if _, ok := rows[key]; ok {
			return
		}
		rows[key] = value
		inserted = true
	}); err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}
	return true, t.Save()
}

// Upsert unconditionally stores value at key, then persists. Last writer wins.
func (t *Table[K, V]) Upsert(key K, value V) error {
	if err := t.mutate(func(rows map[K]V) {
		rows[key] = value
	}); err != nil {
		return err
	}
	return t.Save()
}

// Update applies fn to the value at key if present and reports whether it
// was found. The table is persisted either way; a miss is a wasted but
// harmless write.
func (t *Table[K, V]) Update(key K, fn func(*V)) (bool, error) {
	found := false
	if err := t.mutate(func(rows map[K]V) {
		v, ok := rows[key]
		if !ok {
			return
		}
		fn(&v)
		rows[key] = v
		found = true
	}); err != nil {
		return false, err
	}
	return found, t.Save()
}

// Clear empties the table and persists. Requires an administrative token.
func (t *Table[K, V]) Clear(_ AdminToken) error {
	if err := t.mutate(func(rows map[K]V) {
		clear(rows)
	}); err != nil {
		return err
	}
	return t.Save()
}

// Mutate grants fn transient exclusive access to the mapping, then persists.
// fn must not retain the map or any value past its return. An error from fn
// aborts the mutation without persisting; only a panic poisons the table.
func (t *Table[K, V]) Mutate(fn func(rows map[K]V) error) error {
	var fnErr error
	if err := t.mutate(func(rows map[K]V) {
		fnErr = fn(rows)
	}); err != nil {
		return err
	}
	if fnErr != nil {
		return fnErr
	}
	return t.Save()
}

// mutate runs fn with the write lock held. Critical sections stay in-memory;
// disk writes happen after release. A panic inside fn poisons the table:
// every later operation fails with TABLE_POISONED until process restart.
func (t *Table[K, V]) mutate(fn func(rows map[K]V)) error {
	t.mu.Lock()
	if t.poisoned {
		t.mu.Unlock()
		return apierrors.TablePoisoned(t.name())
	}
	defer t.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			t.poisoned = true
			panic(r)
		}
	}()
	fn(t.rows)
	return nil
}

// Save serializes the current snapshot to the backing file, creating parent
// directories as needed. The snapshot is taken under the read lock; the file
// write happens outside any lock, so two back-to-back writers may land their
// snapshots in either order and the file reflects whichever lands last.
func (t *Table[K, V]) Save() error {
	t.mu.RLock()
	if t.poisoned {
		t.mu.RUnlock()
		return apierrors.TablePoisoned(t.name())
	}
	data, err := json.MarshalIndent(t.rows, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return apierrors.Serialization("failed to serialize table "+t.name(), err)
	}

	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apierrors.Storage("failed to create directory for "+t.name(), err)
		}
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return apierrors.Storage("failed to write table "+t.name(), err)
	}
	return nil
}
