package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetAndGet(t *testing.T) {
	store := openTestStore(t)

	if err := store.Set("k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	res, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !res.Hit {
		t.Fatal("expected a hit")
	}
	if string(res.Value) != "v" {
		t.Fatalf("value = %q, want v", res.Value)
	}
}

func TestGetMissingKey(t *testing.T) {
	store := openTestStore(t)
	res, err := store.Get("absent")
	if err != nil {
		t.Fatal(err)
	}
	if res.Hit {
		t.Fatal("missing key should miss")
	}
}

func TestSetOverwrites(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("k", []byte("one"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := store.Set("k", []byte("two"), time.Hour); err != nil {
		t.Fatal(err)
	}
	res, err := store.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Value) != "two" {
		t.Fatalf("value = %q, want the overwrite", res.Value)
	}
}

func TestExpiredEntryMisses(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("k", []byte("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)
	res, err := store.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if res.Hit {
		t.Fatal("expired entry should miss")
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var store *Store
	if err := store.Set("k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}
	res, err := store.Get("k")
	if err != nil || res.Hit {
		t.Fatal("nil store should behave as an always-miss cache")
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
}
