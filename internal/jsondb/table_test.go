package jsondb

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	apierrors "github.com/dlemaire/picofeed/internal/errors"
)

type record struct {
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

func (r record) Clone() record {
	r.Tags = slices.Clone(r.Tags)
	return r
}

type testToken struct{}

func (testToken) AdminID() uint64 { return 1 }

func newTable(t *testing.T) *Table[uint64, record] {
	t.Helper()
	return Load[uint64, record](filepath.Join(t.TempDir(), "records.json"))
}

func TestLoad(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		tbl := Load[uint64, record](filepath.Join(t.TempDir(), "nope.json"))
		if tbl.Len() != 0 {
			t.Errorf("Expected empty table, got %d rows", tbl.Len())
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "records.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		tbl := Load[uint64, record](path)
		if tbl.Len() != 0 {
			t.Errorf("Expected empty table from malformed file, got %d rows", tbl.Len())
		}
		// The table must still be writable.
		if _, err := tbl.Create(1, record{Name: "a"}); err != nil {
			t.Errorf("Create after malformed load: %v", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "records.json")
		tbl := Load[uint64, record](path)
		if err := tbl.Upsert(7, record{Name: "seven", Tags: []string{"odd"}}); err != nil {
			t.Fatal(err)
		}
		reloaded := Load[uint64, record](path)
		got, ok := reloaded.Get(7)
		if !ok {
			t.Fatal("Expected row 7 after reload")
		}
		if got.Name != "seven" || !slices.Equal(got.Tags, []string{"odd"}) {
			t.Errorf("Unexpected row after reload: %+v", got)
		}
	})
}

func TestCreate(t *testing.T) {
	tbl := newTable(t)

	inserted, err := tbl.Create(1, record{Name: "first"})
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Error("Expected insert on fresh key")
	}

	t.Run("existing key is a no-op", func(t *testing.T) {
		inserted, err := tbl.Create(1, record{Name: "second"})
		if err != nil {
			t.Fatal(err)
		}
		if inserted {
			t.Error("Expected no insert on existing key")
		}
		got, _ := tbl.Get(1)
		if got.Name != "first" {
			t.Errorf("Existing value was overwritten: %+v", got)
		}
	})

	t.Run("persisted", func(t *testing.T) {
		if _, err := os.Stat(tbl.Path()); err != nil {
			t.Errorf("Expected table file after Create: %v", err)
		}
	})
}

func TestUpsert(t *testing.T) {
	tbl := newTable(t)
	if err := tbl.Upsert(1, record{Name: "a", Tags: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	// Overwrite replaces the value whole, no merge.
	if err := tbl.Upsert(1, record{Name: "b"}); err != nil {
		t.Fatal(err)
	}
	got, _ := tbl.Get(1)
	if got.Name != "b" || got.Tags != nil {
		t.Errorf("Expected whole-value overwrite, got %+v", got)
	}
}

func TestUpdate(t *testing.T) {
	tbl := newTable(t)
	if _, err := tbl.Create(1, record{Name: "a"}); err != nil {
		t.Fatal(err)
	}

	t.Run("found", func(t *testing.T) {
		found, err := tbl.Update(1, func(r *record) { r.Name = "z" })
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Error("Expected found")
		}
		got, _ := tbl.Get(1)
		if got.Name != "z" {
			t.Errorf("Update not applied: %+v", got)
		}
	})

	t.Run("missing key still persists", func(t *testing.T) {
		found, err := tbl.Update(99, func(r *record) { r.Name = "never" })
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Error("Expected not found")
		}
		if _, ok := tbl.Get(99); ok {
			t.Error("Miss must not create a row")
		}
	})
}

func TestGetReturnsOwnedCopy(t *testing.T) {
	tbl := newTable(t)
	if _, err := tbl.Create(1, record{Name: "a", Tags: []string{"x", "y"}}); err != nil {
		t.Fatal(err)
	}
	got, _ := tbl.Get(1)
	got.Tags[0] = "mutated"
	again, _ := tbl.Get(1)
	if again.Tags[0] != "x" {
		t.Error("Caller mutation leaked into the table")
	}
}

func TestSnapshot(t *testing.T) {
	tbl := newTable(t)
	for i := uint64(1); i <= 3; i++ {
		if _, err := tbl.Create(i, record{Name: "r"}); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := tbl.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("Expected 3 rows, got %d", len(rows))
	}
	delete(rows, 1)
	if tbl.Len() != 3 {
		t.Error("Snapshot deletion leaked into the table")
	}
}

func TestClear(t *testing.T) {
	tbl := newTable(t)
	if _, err := tbl.Create(1, record{Name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Clear(testToken{}); err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 0 {
		t.Errorf("Expected empty table after Clear, got %d rows", tbl.Len())
	}
	reloaded := Load[uint64, record](tbl.Path())
	if reloaded.Len() != 0 {
		t.Error("Clear was not persisted")
	}
}

func TestMutate(t *testing.T) {
	t.Run("error aborts without persisting", func(t *testing.T) {
		tbl := newTable(t)
		wantErr := errors.New("nope")
		err := tbl.Mutate(func(rows map[uint64]record) error {
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Errorf("Expected fn error back, got %v", err)
		}
		if _, statErr := os.Stat(tbl.Path()); !os.IsNotExist(statErr) {
			t.Error("Aborted mutation must not write the file")
		}
	})

	t.Run("success persists", func(t *testing.T) {
		tbl := newTable(t)
		err := tbl.Mutate(func(rows map[uint64]record) error {
			rows[5] = record{Name: "five"}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		reloaded := Load[uint64, record](tbl.Path())
		if _, ok := reloaded.Get(5); !ok {
			t.Error("Mutation was not persisted")
		}
	})
}

// The snapshot is marshaled under the read lock but written to disk after
// release, so concurrent writers may land their files in either order. The
// in-memory table must still contain every committed entry, and the file on
// disk must be one writer's complete snapshot, never an interleaving.
func TestConcurrentWriters(t *testing.T) {
	tbl := newTable(t)
	const writers = 16
	const perWriter = 8

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := uint64(w * perWriter)
			for i := range uint64(perWriter) {
				if _, err := tbl.Create(base+i+1, record{Name: "w"}); err != nil {
					t.Errorf("Create(%d): %v", base+i+1, err)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range writers {
			if _, err := tbl.Update(1, func(r *record) { r.Name = "u" }); err != nil {
				t.Errorf("Update: %v", err)
			}
		}
	}()
	wg.Wait()

	if tbl.Len() != writers*perWriter {
		t.Errorf("Expected %d rows in memory, got %d", writers*perWriter, tbl.Len())
	}

	// The file holds whichever snapshot landed last. It must parse and every
	// row in it must exist in the in-memory table; a final Save converges it.
	reloaded := Load[uint64, record](tbl.Path())
	rows, err := reloaded.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	for k := range rows {
		if _, ok := tbl.Get(k); !ok {
			t.Errorf("File contains row %d absent from memory", k)
		}
	}
	if err := tbl.Save(); err != nil {
		t.Fatal(err)
	}
	converged := Load[uint64, record](tbl.Path())
	if converged.Len() != writers*perWriter {
		t.Errorf("Expected %d rows after final save, got %d", writers*perWriter, converged.Len())
	}
}

func TestPoisoning(t *testing.T) {
	tbl := newTable(t)
	if _, err := tbl.Create(1, record{Name: "a"}); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("Expected panic to propagate")
			}
		}()
		_, _ = tbl.Update(1, func(r *record) { panic("writer died") })
	}()

	assertPoisoned := func(t *testing.T, err error) {
		t.Helper()
		if err == nil {
			t.Fatal("Expected TABLE_POISONED error")
		}
		var apiErr *apierrors.APIError
		if !errors.As(err, &apiErr) || apiErr.Code() != apierrors.ErrTablePoisoned {
			t.Errorf("Expected TABLE_POISONED, got %v", err)
		}
	}

	t.Run("reads fail", func(t *testing.T) {
		if _, ok := tbl.Get(1); ok {
			t.Error("Get must fail on poisoned table")
		}
		_, err := tbl.Exists(1)
		assertPoisoned(t, err)
		_, err = tbl.Snapshot()
		assertPoisoned(t, err)
	})

	t.Run("writes fail", func(t *testing.T) {
		_, err := tbl.Create(2, record{Name: "b"})
		assertPoisoned(t, err)
		assertPoisoned(t, tbl.Upsert(2, record{Name: "b"}))
		assertPoisoned(t, tbl.Save())
		assertPoisoned(t, tbl.Clear(testToken{}))
	})

	t.Run("reload recovers", func(t *testing.T) {
		reloaded := Load[uint64, record](tbl.Path())
		if _, ok := reloaded.Get(1); !ok {
			t.Error("Expected committed row to survive a restart")
		}
	})
}
