package header

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"objectrepo/internal/chunker"
	"objectrepo/internal/codec"
	"objectrepo/internal/keymat"
)

// FormatVersion identifies this module's on-disk layout. Stored in the
// Version block and cross-checked against the Superblock at open.
const FormatVersion = 1

// PackingMode selects whether Data blocks hold individual encoded
// chunks or fixed-size packs of them (spec.md §4.5).
type PackingMode int

const (
	PackingNone PackingMode = iota
	PackingFixed
)

// PackingParams configures the packing layer.
type PackingParams struct {
	Mode     PackingMode
	PackSize uint64 // bytes; meaningful only when Mode is PackingFixed
}

// ChunkingParams configures the chunker (spec.md §4.2).
type ChunkingParams struct {
	Kind      chunker.Kind
	FixedSize int
	Bits      uint
}

// Superblock is the plaintext root pointer (spec.md §3, §6). It lives at
// the single well-known Super key and is the sole object flipped
// atomically at commit.
type Superblock struct {
	RepositoryUUID   uuid.UUID
	FormatVersion    uint32
	Chunking         ChunkingParams
	Packing          PackingParams
	Compression      codec.Compression
	Encryption       codec.EncryptionAlgo
	KDFParams        keymat.KDFParams
	WrappedMasterKey []byte
	CurrentHeaderID  uuid.UUID
	PreviousHeaderID uuid.UUID
}

// Marshal serializes the Superblock with msgpack.
func (s *Superblock) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("header: marshal superblock: %w", err)
	}
	return b, nil
}

// UnmarshalSuperblock is the inverse of Marshal.
func UnmarshalSuperblock(data []byte) (*Superblock, error) {
	var s Superblock
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("header: unmarshal superblock: %w", err)
	}
	return &s, nil
}

// Marshal serializes the Header with msgpack, for storage (after
// encoding) as a Header block.
func (h *Header) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("header: marshal header: %w", err)
	}
	return b, nil
}

// Unmarshal is the inverse of Marshal, returning a newly allocated Header.
func Unmarshal(data []byte) (*Header, error) {
	h := &Header{}
	if err := msgpack.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("header: unmarshal header: %w", err)
	}
	if h.ChunkIndex == nil {
		h.ChunkIndex = make(map[ChunkHash]ChunkMeta)
	}
	if h.Instances == nil {
		h.Instances = make(map[InstanceID]Instance)
	}
	return h, nil
}
