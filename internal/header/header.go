// Package header defines the repository's serializable root state:
// the chunk index, per-instance object namespaces, and the plaintext
// Superblock that points at the current encrypted Header block. See
// spec.md §3 and §6.
package header

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// ChunkHash is a 256-bit BLAKE3 digest of a chunk's raw, pre-compression
// bytes. Two chunks with the same hash are assumed to have identical
// bytes (spec.md §3's collision-resistance invariant).
type ChunkHash [32]byte

// Sum returns the ChunkHash of data.
func Sum(data []byte) ChunkHash {
	return ChunkHash(blake3.Sum256(data))
}

func (h ChunkHash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}

// ContentID is a hash over an object's ordered chunk-hash sequence, not
// over raw object bytes; equal content ids imply equal content.
type ContentID [32]byte

func (c ContentID) String() string {
	return fmt.Sprintf("%x", [32]byte(c))
}

// ContentIDOf hashes the ordered sequence of chunk hashes that make up
// an object, producing a stable, cheap-to-recompute content id.
func ContentIDOf(chunks []ChunkRef) ContentID {
	h := blake3.New()
	for _, c := range chunks {
		h.Write(c.Hash[:])
	}
	var out ContentID
	copy(out[:], h.Sum(nil))
	return out
}

// Fragment is one slice of a chunk stored inside a pack, used when the
// packing layer splits a chunk across a pack boundary.
type Fragment struct {
	PackID uuid.UUID
	Offset uint64
	Length uint64
}

// BlockLocation records where a chunk's encoded bytes live. Exactly one
// of BlockID (direct mode) or Fragments (packed mode) is populated; the
// other is the zero value.
type BlockLocation struct {
	BlockID   uuid.UUID
	Fragments []Fragment `msgpack:",omitempty"`
}

// Packed reports whether this location refers to pack fragments rather
// than a standalone Data block.
func (l BlockLocation) Packed() bool {
	return len(l.Fragments) > 0
}

// ChunkMeta is the chunk index's value type: a chunk's raw size plus
// where its encoded bytes are stored. Size is kept alongside the
// location because the packing layer needs it without decoding
// (spec.md §3).
type ChunkMeta struct {
	Size     uint64
	Location BlockLocation
}

// ChunkRef appears inside an object's chunk list: the hash identifying
// the chunk plus its raw size, so object size and content id can be
// computed without a chunk-index lookup.
type ChunkRef struct {
	Hash ChunkHash
	Size uint64
}

// ObjectHandle is an ordered list of chunks making up one object, plus
// its total size. Size is redundant with the sum of chunk sizes but
// kept for O(1) access.
type ObjectHandle struct {
	Chunks []ChunkRef
	Size   uint64
}

// ContentID returns the object's content id, computed from its chunk
// list.
func (o ObjectHandle) ContentID() ContentID {
	return ContentIDOf(o.Chunks)
}

// InstanceID identifies one named partition of the repository's object
// namespace.
type InstanceID uuid.UUID

func (i InstanceID) String() string { return uuid.UUID(i).String() }

// DefaultInstance is the well-known instance id used when the caller
// does not name one explicitly.
var DefaultInstance = InstanceID(uuid.Nil)

// Instance partitions the object namespace into caller-keyed objects
// and managed (internally keyed) objects.
type Instance struct {
	Objects map[string]ObjectHandle
	Managed map[uuid.UUID]ObjectHandle
}

// NewInstance returns an empty Instance.
func NewInstance() Instance {
	return Instance{
		Objects: make(map[string]ObjectHandle),
		Managed: make(map[uuid.UUID]ObjectHandle),
	}
}

// Header is the repository's in-memory root state. It is serialized as
// a unit and written to a Header block at commit (spec.md §4.6); a
// savepoint keeps an in-memory Clone and writes no block. The chunk index is pruned to the set of chunks
// reachable from Instances immediately before every commit (see
// txn.pruneChunkIndex), so unlike Instances it never needs a separate
// "unreferenced" side table: reachability is recomputed fresh each time
// rather than tracked incrementally.
type Header struct {
	ChunkIndex map[ChunkHash]ChunkMeta
	Instances  map[InstanceID]Instance
}

// New returns an empty Header with a single default instance.
func New() *Header {
	return &Header{
		ChunkIndex: make(map[ChunkHash]ChunkMeta),
		Instances:  map[InstanceID]Instance{DefaultInstance: NewInstance()},
	}
}

// Clone returns a deep copy, used to snapshot state for savepoints and
// for the transaction manager's committed-header tracking.
func (h *Header) Clone() *Header {
	out := &Header{
		ChunkIndex: make(map[ChunkHash]ChunkMeta, len(h.ChunkIndex)),
		Instances:  make(map[InstanceID]Instance, len(h.Instances)),
	}
	for k, v := range h.ChunkIndex {
		meta := v
		if v.Location.Fragments != nil {
			meta.Location.Fragments = append([]Fragment(nil), v.Location.Fragments...)
		}
		out.ChunkIndex[k] = meta
	}
	for id, inst := range h.Instances {
		clone := NewInstance()
		for k, v := range inst.Objects {
			clone.Objects[k] = cloneObject(v)
		}
		for k, v := range inst.Managed {
			clone.Managed[k] = cloneObject(v)
		}
		out.Instances[id] = clone
	}
	return out
}

func cloneObject(o ObjectHandle) ObjectHandle {
	return ObjectHandle{
		Chunks: append([]ChunkRef(nil), o.Chunks...),
		Size:   o.Size,
	}
}
