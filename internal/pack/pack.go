// Package pack implements the packing layer: an optional wrapper over
// the chunk store that concatenates raw chunk bytes into fixed-size
// packs before compressing and encrypting them as a unit, to amortize
// per-block overhead for small chunks. See spec.md §4.5.
package pack

import (
	"fmt"

	"github.com/google/uuid"

	"objectrepo/internal/codec"
	"objectrepo/internal/header"
	"objectrepo/internal/rstore"
)

// ErrNotFound is returned when a requested chunk hash is absent from
// the chunk index. A hash indexed in direct mode rather than packed
// mode gets a separate, non-sentinel error.
var ErrNotFound = fmt.Errorf("pack: chunk not found")

// Store is the packed-mode chunk store. Unlike chunkstore.Store, the
// compress+encrypt codec is applied to a whole pack's raw bytes, not to
// each chunk individually: chunk boundaries inside a pack are plaintext
// offsets recorded as header.Fragment entries.
type Store struct {
	blocks   rstore.Store
	params   codec.Params
	key      []byte
	hdr      *header.Header
	packSize uint64

	curPackID uuid.UUID
	buffer    []byte

	cachePackID uuid.UUID
	cacheValid  bool
	cacheRaw    []byte
}

// New returns a packed-mode chunk store accumulating Data blocks of at
// most packSize bytes each.
func New(blocks rstore.Store, params codec.Params, key []byte, hdr *header.Header, packSize uint64) *Store {
	if packSize == 0 {
		packSize = 1
	}
	return &Store{
		blocks:    blocks,
		params:    params,
		key:       key,
		hdr:       hdr,
		packSize:  packSize,
		curPackID: uuid.New(),
	}
}

// Put hashes data, returns the existing hash unchanged if already
// present in the chunk index (dedup, no re-append, per spec.md §4.5),
// or appends it into the write accumulator — splitting across pack
// boundaries as needed — and records the fragment list in the chunk
// index.
func (s *Store) Put(data []byte) (header.ChunkHash, error) {
	hash := header.Sum(data)
	if _, ok := s.hdr.ChunkIndex[hash]; ok {
		return hash, nil
	}

	var fragments []header.Fragment
	remaining := data
	for len(remaining) > 0 {
		space := s.packSize - uint64(len(s.buffer))
		if space == 0 {
			if err := s.flushPack(); err != nil {
				return header.ChunkHash{}, err
			}
			space = s.packSize
		}
		n := space
		if uint64(len(remaining)) < n {
			n = uint64(len(remaining))
		}
		offset := uint64(len(s.buffer))
		s.buffer = append(s.buffer, remaining[:n]...)
		fragments = append(fragments, header.Fragment{PackID: s.curPackID, Offset: offset, Length: n})
		remaining = remaining[n:]

		if uint64(len(s.buffer)) == s.packSize {
			if err := s.flushPack(); err != nil {
				return header.ChunkHash{}, err
			}
		}
	}

	s.hdr.ChunkIndex[hash] = header.ChunkMeta{
		Size:     uint64(len(data)),
		Location: header.BlockLocation{Fragments: fragments},
	}
	return hash, nil
}

// Get reassembles a chunk's bytes from its fragment list, decoding each
// fragment's owning pack (through the read-through cache) as needed.
func (s *Store) Get(hash header.ChunkHash) ([]byte, error) {
	meta, ok := s.hdr.ChunkIndex[hash]
	if !ok {
		return nil, ErrNotFound
	}
	if !meta.Location.Packed() {
		return nil, fmt.Errorf("pack: chunk %s is stored directly, not in a pack", hash)
	}

	out := make([]byte, 0, meta.Size)
	for _, frag := range meta.Location.Fragments {
		raw, err := s.readPackRaw(frag.PackID)
		if err != nil {
			return nil, err
		}
		if frag.Offset+frag.Length > uint64(len(raw)) {
			return nil, fmt.Errorf("pack: fragment out of range in pack %s", frag.PackID)
		}
		out = append(out, raw[frag.Offset:frag.Offset+frag.Length]...)
	}
	if uint64(len(out)) != meta.Size {
		return nil, fmt.Errorf("pack: reassembled chunk %s size mismatch: got %d want %d", hash, len(out), meta.Size)
	}
	return out, nil
}

// Size returns the raw size of hash without decoding it, or (0, false)
// if absent from the index.
func (s *Store) Size(hash header.ChunkHash) (uint64, bool) {
	meta, ok := s.hdr.ChunkIndex[hash]
	if !ok {
		return 0, false
	}
	return meta.Size, true
}

// readPackRaw returns the decoded (plaintext) bytes of the pack
// identified by packID, serving from the size-one read-through cache
// when possible. A pack that is still the open write accumulator (not
// yet flushed to the block store) is served directly from the buffer.
func (s *Store) readPackRaw(packID uuid.UUID) ([]byte, error) {
	if packID == s.curPackID {
		return s.buffer, nil
	}
	if s.cacheValid && s.cachePackID == packID {
		return s.cacheRaw, nil
	}

	encoded, ok, err := s.blocks.Read(rstore.DataKey(packID))
	if err != nil {
		return nil, fmt.Errorf("pack: read: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("pack: missing pack block %s", packID)
	}
	decoded, err := s.params.Decode(encoded, s.key)
	if err != nil {
		return nil, fmt.Errorf("pack: decode: %w", err)
	}

	s.cachePackID = packID
	s.cacheRaw = decoded
	s.cacheValid = true
	return decoded, nil
}

// flushPack encodes the current write accumulator as a single Data
// block and starts a fresh, empty pack. Packs are never rewritten once
// flushed (spec.md §4.5).
func (s *Store) flushPack() error {
	if len(s.buffer) == 0 {
		s.curPackID = uuid.New()
		return nil
	}
	encoded, err := s.params.Encode(s.buffer, s.key)
	if err != nil {
		return fmt.Errorf("pack: encode: %w", err)
	}
	if err := s.blocks.Write(rstore.DataKey(s.curPackID), encoded); err != nil {
		return fmt.Errorf("pack: write: %w", err)
	}

	// The pack we just flushed is the freshest thing we've decoded, so
	// prime the cache with it rather than forcing a round-trip through
	// the block store on the next read of a chunk inside it.
	s.cachePackID = s.curPackID
	s.cacheRaw = s.buffer
	s.cacheValid = true

	s.buffer = nil
	s.curPackID = uuid.New()
	return nil
}

// FlushPending flushes a partially filled write accumulator as-is,
// without waiting for it to fill. The transaction manager calls this at
// commit (spec.md §4.5: "When commit is called with a partially filled
// write accumulator, the partial pack is flushed as-is").
func (s *Store) FlushPending() error {
	return s.flushPack()
}
