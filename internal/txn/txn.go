// Package txn implements the transaction manager: savepoints, commit,
// rollback, and the post-commit garbage collection pass. See spec.md
// §4.8.
//
// State machine, per spec.md:
//
//	CLEAN --write--> DIRTY --commit--> CLEAN
//	  |                 |
//	  |               rollback
//	  |                 v
//	  +------------- CLEAN
//
// This package does not itself distinguish CLEAN from DIRTY with a
// flag; any mutation to the header returned by Current is, by
// definition, a dirty transaction, and Commit/Rollback both return the
// repository to a state indistinguishable from CLEAN.
package txn

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"objectrepo/internal/codec"
	"objectrepo/internal/header"
	"objectrepo/internal/rstore"
)

// ErrInvalidSavepoint is returned by Restore when sp was taken in a
// generation that no longer applies — a commit or rollback happened
// since, per spec.md §4.8/§7.
var ErrInvalidSavepoint = errors.New("txn: invalid savepoint")

// Savepoint is an opaque snapshot of the in-memory header, plus the
// generation counter it was taken in.
type Savepoint struct {
	snapshot   *header.Header
	generation uint64
}

// Manager owns the single in-memory header for one repository handle
// and orchestrates the atomic superblock flip at commit.
type Manager struct {
	blocks rstore.Store
	params codec.Params
	key    []byte
	sb     *header.Superblock

	current    *header.Header
	committed  *header.Header
	generation uint64
}

// New returns a Manager for an already-open repository: sb is the
// current Superblock, hdr is the header it currently points to (read
// and decoded by the caller at open time).
func New(blocks rstore.Store, params codec.Params, key []byte, sb *header.Superblock, hdr *header.Header) *Manager {
	return &Manager{
		blocks:    blocks,
		params:    params,
		key:       key,
		sb:        sb,
		current:   hdr,
		committed: hdr.Clone(),
	}
}

// Current returns the live, mutable in-memory header. Callers mutate
// it directly (inserting objects, updating the chunk index); the
// Manager only cares about it at Savepoint/Commit/Rollback time.
func (m *Manager) Current() *header.Header {
	return m.current
}

// Savepoint snapshots the current header.
func (m *Manager) Savepoint() *Savepoint {
	return &Savepoint{snapshot: m.current.Clone(), generation: m.generation}
}

// Restore replaces the in-memory header with sp's snapshot. It fails
// with ErrInvalidSavepoint if a commit or rollback has happened since
// sp was taken (spec.md §8 invariant 6 only promises restore(savepoint())
// is a no-op when no such intervening event has occurred).
func (m *Manager) Restore(sp *Savepoint) error {
	if sp.generation != m.generation {
		return ErrInvalidSavepoint
	}
	m.current = sp.snapshot.Clone()
	return nil
}

// Commit flushes all pending state and performs the atomic superblock
// flip. flushObjects is called first (to let the caller flush any open
// object views into the current header); flushPacks is called next (to
// flush a partially filled packing-layer write accumulator, if packing
// is enabled); either may be nil.
//
// On any failure before the superblock write, the repository's
// committed state is exactly what it was before Commit was called
// (spec.md §7's user-visible guarantee). The in-memory header keeps its
// objects, but whatever the flush hooks staged stays in it, and once
// pruneChunkIndex has run its unreachable chunk-index entries are gone. A header block written before a failed superblock write
// is simply orphaned; the next clean pass (after a future successful
// commit) reclaims it, since it is unreferenced by the (unchanged)
// superblock.
func (m *Manager) Commit(flushObjects, flushPacks func() error) error {
	if flushObjects != nil {
		if err := flushObjects(); err != nil {
			return fmt.Errorf("txn: flush objects: %w", err)
		}
	}
	if flushPacks != nil {
		if err := flushPacks(); err != nil {
			return fmt.Errorf("txn: flush packs: %w", err)
		}
	}

	pruneChunkIndex(m.current)

	data, err := m.current.Marshal()
	if err != nil {
		return fmt.Errorf("txn: marshal header: %w", err)
	}
	encoded, err := m.params.Encode(data, m.key)
	if err != nil {
		return fmt.Errorf("txn: encode header: %w", err)
	}

	newHeaderID := uuid.New()
	if err := m.blocks.Write(rstore.HeaderKey(newHeaderID), encoded); err != nil {
		return fmt.Errorf("txn: write header block: %w", err)
	}

	prevCurrent, prevPrevious := m.sb.CurrentHeaderID, m.sb.PreviousHeaderID
	m.sb.PreviousHeaderID = prevCurrent
	m.sb.CurrentHeaderID = newHeaderID

	sbBytes, err := m.sb.Marshal()
	if err != nil {
		m.sb.CurrentHeaderID, m.sb.PreviousHeaderID = prevCurrent, prevPrevious
		return fmt.Errorf("txn: marshal superblock: %w", err)
	}

	// This Write is the linearization point (spec.md §4.8): once it
	// succeeds, the new state is committed; if it fails, the
	// superblock fields are rolled back below and nothing changed.
	if err := m.blocks.Write(rstore.SuperKey, sbBytes); err != nil {
		m.sb.CurrentHeaderID, m.sb.PreviousHeaderID = prevCurrent, prevPrevious
		return fmt.Errorf("txn: write superblock: %w", err)
	}

	m.committed = m.current.Clone()
	m.generation++

	return m.clean()
}

// Rollback discards all changes since the last commit (or since open,
// if there has been none), restoring committed. It bumps the
// generation counter, invalidating any savepoint taken during the
// discarded transaction.
func (m *Manager) Rollback() error {
	m.current = m.committed.Clone()
	m.generation++
	return nil
}

// reachableChunkHashes walks every ObjectHandle reachable from hdr —
// every instance's user-keyed and managed objects — and returns the set
// of chunk hashes any of them still references. The chunk index is
// append-only as objects are written (chunkstore.Store.Put and
// pack.Store.Put only ever insert), so this walk is the only place that
// knows which entries became unreferenced when an object was removed
// or overwritten (spec.md §3 "Lifecycle"): instance.Manager.Put and
// RemoveObject replace or drop an ObjectHandle outright and do not, by
// themselves, touch the chunk index.
func reachableChunkHashes(hdr *header.Header) map[header.ChunkHash]struct{} {
	reachable := make(map[header.ChunkHash]struct{})
	for _, inst := range hdr.Instances {
		for _, obj := range inst.Objects {
			for _, ref := range obj.Chunks {
				reachable[ref.Hash] = struct{}{}
			}
		}
		for _, obj := range inst.Managed {
			for _, ref := range obj.Chunks {
				reachable[ref.Hash] = struct{}{}
			}
		}
	}
	return reachable
}

// pruneChunkIndex deletes every chunk index entry no longer reachable
// from any instance's objects, per spec.md §3: "chunks... become
// unreferenced when the last object referring to them is removed or
// overwritten; are collected during clean." Called before the header
// is marshaled at commit so the written header and the post-commit
// Data-block sweep in clean agree on what is still referenced.
func pruneChunkIndex(hdr *header.Header) {
	reachable := reachableChunkHashes(hdr)
	for hash := range hdr.ChunkIndex {
		if _, ok := reachable[hash]; !ok {
			delete(hdr.ChunkIndex, hash)
		}
	}
}

// clean deletes Data blocks whose id is referenced by no chunk in the
// current (already pruned) chunk index, and Header blocks other than
// the current and previous ones (spec.md §3 "Lifecycle", §4.8). It
// scans the block store rather than trusting an in-memory accounting
// of what became unreferenced, so it also reclaims Data blocks orphaned
// by a transaction that wrote them but crashed before the superblock
// flip (spec.md §4.8's crash-safety note).
func (m *Manager) clean() error {
	referenced := make(map[uuid.UUID]struct{}, len(m.current.ChunkIndex))
	for _, meta := range m.current.ChunkIndex {
		if meta.Location.Packed() {
			for _, frag := range meta.Location.Fragments {
				referenced[frag.PackID] = struct{}{}
			}
		} else {
			referenced[meta.Location.BlockID] = struct{}{}
		}
	}

	dataIDs, err := m.blocks.List(rstore.KindData)
	if err != nil {
		return fmt.Errorf("txn: list data blocks: %w", err)
	}
	for _, id := range dataIDs {
		if _, ok := referenced[id]; ok {
			continue
		}
		if err := m.blocks.Remove(rstore.DataKey(id)); err != nil {
			return fmt.Errorf("txn: remove orphaned data block %s: %w", id, err)
		}
	}

	headerIDs, err := m.blocks.List(rstore.KindHeader)
	if err != nil {
		return fmt.Errorf("txn: list header blocks: %w", err)
	}
	for _, id := range headerIDs {
		if id == m.sb.CurrentHeaderID || id == m.sb.PreviousHeaderID {
			continue
		}
		if err := m.blocks.Remove(rstore.HeaderKey(id)); err != nil {
			return fmt.Errorf("txn: remove stale header block %s: %w", id, err)
		}
	}

	return nil
}
