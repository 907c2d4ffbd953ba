package dirstore

import (
	"testing"

	"github.com/google/uuid"

	"objectrepo/internal/rstore"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	key := rstore.DataKey(uuid.New())
	if err := store.Write(key, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, ok, err := store.Read(key)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestReadMissingReturnsNotOk(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, ok, err := store.Read(rstore.DataKey(uuid.New()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing block")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	key := rstore.DataKey(uuid.New())
	if err := store.Remove(key); err != nil {
		t.Fatalf("remove absent: %v", err)
	}

	if err := store.Write(key, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Remove(key); err != nil {
		t.Fatalf("remove present: %v", err)
	}
	if err := store.Remove(key); err != nil {
		t.Fatalf("remove again: %v", err)
	}

	if _, ok, _ := store.Read(key); ok {
		t.Fatal("expected block to be gone after remove")
	}
}

func TestListReturnsOnlyMatchingKind(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	dataID := uuid.New()
	lockID := uuid.New()
	if err := store.Write(rstore.DataKey(dataID), []byte("d")); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if err := store.Write(rstore.LockKey(lockID), []byte("l")); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	dataIDs, err := store.List(rstore.KindData)
	if err != nil {
		t.Fatalf("list data: %v", err)
	}
	if len(dataIDs) != 1 || dataIDs[0] != dataID {
		t.Fatalf("list data = %v, want [%v]", dataIDs, dataID)
	}

	lockIDs, err := store.List(rstore.KindLock)
	if err != nil {
		t.Fatalf("list lock: %v", err)
	}
	if len(lockIDs) != 1 || lockIDs[0] != lockID {
		t.Fatalf("list lock = %v, want [%v]", lockIDs, lockID)
	}
}

func TestSuperAndVersionAreSingletonsAcrossIDs(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := store.Write(rstore.SuperKey, []byte("sb-1")); err != nil {
		t.Fatalf("write super: %v", err)
	}
	if err := store.Write(rstore.SuperKey, []byte("sb-2")); err != nil {
		t.Fatalf("overwrite super: %v", err)
	}

	got, ok, err := store.Read(rstore.SuperKey)
	if err != nil || !ok {
		t.Fatalf("read super: ok=%v err=%v", ok, err)
	}
	if string(got) != "sb-2" {
		t.Fatalf("got %q, want %q", got, "sb-2")
	}
}

func TestWriteSurvivesAcrossStoreInstances(t *testing.T) {
	dir := t.TempDir()
	store1, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	key := rstore.HeaderKey(uuid.New())
	if err := store1.Write(key, []byte("persisted")); err != nil {
		t.Fatalf("write: %v", err)
	}

	store2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok, err := store2.Read(key)
	if err != nil || !ok {
		t.Fatalf("read after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != "persisted" {
		t.Fatalf("got %q, want %q", got, "persisted")
	}
}
