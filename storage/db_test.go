package storage

import (
	"errors"
	"testing"
)

func runDatabaseSuite(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := db.Put([]byte("a/1"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("a/2"), []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("b/1"), []byte("other")); err != nil {
		t.Fatalf("put: %v", err)
	}

	value, err := db.Get([]byte("a/1"))
	if err != nil || string(value) != "one" {
		t.Fatalf("get a/1 = %q, %v", value, err)
	}

	ok, err := db.Has([]byte("a/2"))
	if err != nil || !ok {
		t.Fatalf("has a/2 = %v, %v", ok, err)
	}

	var keys []string
	if err := db.IteratePrefix([]byte("a/"), func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a/1" || keys[1] != "a/2" {
		t.Fatalf("prefix iteration returned %v", keys)
	}

	// Early termination.
	count := 0
	if err := db.IteratePrefix([]byte("a/"), func(_, _ []byte) bool {
		count++
		return false
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if count != 1 {
		t.Fatalf("iteration did not stop, visited %d", count)
	}

	if err := db.Delete([]byte("a/1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("a/1")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("deleted key still present: %v", err)
	}
}

func TestMemDB(t *testing.T) {
	runDatabaseSuite(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	runDatabaseSuite(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("mutable")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'
	stored, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored) != "mutable" {
		t.Fatalf("stored value aliased caller slice: %q", stored)
	}
}
