package txn

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"objectrepo/blockstore/memstore"
	"objectrepo/internal/codec"
	"objectrepo/internal/header"
	"objectrepo/internal/rstore"
)

func newManager(t *testing.T, blocks rstore.Store) *Manager {
	t.Helper()
	sb := &header.Superblock{RepositoryUUID: uuid.New(), FormatVersion: header.FormatVersion}
	return New(blocks, codec.Params{}, nil, sb, header.New())
}

func TestCommitFlipsSuperblockAndPersistsHeader(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	hash := header.Sum([]byte("a"))
	m.Current().ChunkIndex[hash] = header.ChunkMeta{
		Size:     1,
		Location: header.BlockLocation{BlockID: uuid.New()},
	}
	// Reference the chunk from an object so commit's reachability prune
	// keeps its index entry.
	m.Current().Instances[header.DefaultInstance].Objects["a"] = header.ObjectHandle{
		Chunks: []header.ChunkRef{{Hash: hash, Size: 1}},
		Size:   1,
	}

	if err := m.Commit(nil, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	sbBytes, ok, err := blocks.Read(rstore.SuperKey)
	if err != nil || !ok {
		t.Fatalf("read superblock: ok=%v err=%v", ok, err)
	}
	sb, err := header.UnmarshalSuperblock(sbBytes)
	if err != nil {
		t.Fatalf("unmarshal superblock: %v", err)
	}
	if sb.CurrentHeaderID == uuid.Nil {
		t.Fatal("expected a non-nil current header id after commit")
	}

	hdrBytes, ok, err := blocks.Read(rstore.HeaderKey(sb.CurrentHeaderID))
	if err != nil || !ok {
		t.Fatalf("read committed header block: ok=%v err=%v", ok, err)
	}
	hdr, err := header.Unmarshal(hdrBytes)
	if err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if len(hdr.ChunkIndex) != 1 {
		t.Fatalf("committed header has %d chunk index entries, want 1", len(hdr.ChunkIndex))
	}
}

func TestRollbackDiscardsUncommittedChanges(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	if err := m.Commit(nil, nil); err != nil {
		t.Fatalf("initial commit: %v", err)
	}

	m.Current().ChunkIndex[header.Sum([]byte("dirty"))] = header.ChunkMeta{Size: 5}
	if err := m.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if len(m.Current().ChunkIndex) != 0 {
		t.Fatalf("rollback left %d chunk index entries, want 0", len(m.Current().ChunkIndex))
	}
}

func TestSavepointRestoreRoundTrip(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	sp := m.Savepoint()

	m.Current().ChunkIndex[header.Sum([]byte("after-savepoint"))] = header.ChunkMeta{Size: 1}
	if len(m.Current().ChunkIndex) != 1 {
		t.Fatal("expected the mutation to be visible before restore")
	}

	if err := m.Restore(sp); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(m.Current().ChunkIndex) != 0 {
		t.Fatalf("restored header has %d chunk index entries, want 0", len(m.Current().ChunkIndex))
	}
}

func TestRestoreAfterCommitIsInvalid(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	sp := m.Savepoint()
	if err := m.Commit(nil, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := m.Restore(sp); !errors.Is(err, ErrInvalidSavepoint) {
		t.Fatalf("expected ErrInvalidSavepoint, got %v", err)
	}
}

func TestRestoreAfterRollbackIsInvalid(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	sp := m.Savepoint()
	if err := m.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if err := m.Restore(sp); !errors.Is(err, ErrInvalidSavepoint) {
		t.Fatalf("expected ErrInvalidSavepoint, got %v", err)
	}
}

func TestCommitReclaimsOrphanedDataBlocks(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	orphanID := uuid.New()
	if err := blocks.Write(rstore.DataKey(orphanID), []byte("orphan, never indexed")); err != nil {
		t.Fatalf("seed orphan block: %v", err)
	}

	keptID := uuid.New()
	if err := blocks.Write(rstore.DataKey(keptID), []byte("kept")); err != nil {
		t.Fatalf("seed kept block: %v", err)
	}
	keptHash := header.Sum([]byte("kept"))
	m.Current().ChunkIndex[keptHash] = header.ChunkMeta{
		Size:     4,
		Location: header.BlockLocation{BlockID: keptID},
	}
	m.Current().Instances[header.DefaultInstance].Objects["kept"] = header.ObjectHandle{
		Chunks: []header.ChunkRef{{Hash: keptHash, Size: 4}},
		Size:   4,
	}

	if err := m.Commit(nil, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, ok, err := blocks.Read(rstore.DataKey(orphanID)); err != nil || ok {
		t.Fatalf("expected orphaned data block to be reclaimed, ok=%v err=%v", ok, err)
	}
	if _, ok, err := blocks.Read(rstore.DataKey(keptID)); err != nil || !ok {
		t.Fatalf("expected referenced data block to survive clean, ok=%v err=%v", ok, err)
	}
}

func TestCommitPrunesStaleHeaderBlocksButKeepsPrevious(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	if err := m.Commit(nil, nil); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	firstHeaderID := m.sb.CurrentHeaderID

	if err := m.Commit(nil, nil); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	secondHeaderID := m.sb.CurrentHeaderID

	if m.sb.PreviousHeaderID != firstHeaderID {
		t.Fatalf("previous header id = %s, want %s", m.sb.PreviousHeaderID, firstHeaderID)
	}

	if err := m.Commit(nil, nil); err != nil {
		t.Fatalf("third commit: %v", err)
	}

	if _, ok, err := blocks.Read(rstore.HeaderKey(firstHeaderID)); err != nil || ok {
		t.Fatalf("expected the oldest header block to be pruned, ok=%v err=%v", ok, err)
	}
	if _, ok, err := blocks.Read(rstore.HeaderKey(secondHeaderID)); err != nil || !ok {
		t.Fatalf("expected the previous header block to survive, ok=%v err=%v", ok, err)
	}
}

func TestCommitCallsFlushHooksBeforeWritingHeader(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	var objectsFlushed, packsFlushed bool
	err := m.Commit(
		func() error { objectsFlushed = true; return nil },
		func() error { packsFlushed = true; return nil },
	)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !objectsFlushed || !packsFlushed {
		t.Fatalf("expected both flush hooks to run, objects=%v packs=%v", objectsFlushed, packsFlushed)
	}
}

func TestCommitFailsIfFlushObjectsFails(t *testing.T) {
	blocks := memstore.New()
	m := newManager(t, blocks)

	wantErr := errors.New("flush boom")
	err := m.Commit(func() error { return wantErr }, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped flush error, got %v", err)
	}

	if _, ok, err := blocks.Read(rstore.SuperKey); err != nil || ok {
		t.Fatalf("expected no superblock to be written on a failed flush, ok=%v err=%v", ok, err)
	}
}
