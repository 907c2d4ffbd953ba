// Package chunkstore implements the direct-mode chunk store: content
// hashing, dedup against the header's chunk index, and encode/decode
// through the block store. See spec.md §4.4.
package chunkstore

import (
	"fmt"

	"github.com/google/uuid"

	"objectrepo/internal/codec"
	"objectrepo/internal/header"
	"objectrepo/internal/rstore"
)

// Store is the direct-mode chunk store: one Data block per chunk. It
// operates against a shared Header for the chunk index, so the caller
// (the transaction manager) controls when the index changes become
// durable.
type Store struct {
	blocks rstore.Store
	params codec.Params
	key    []byte
	hdr    *header.Header
}

// New returns a direct-mode chunk store writing encoded chunks to
// blocks, indexed through hdr. key is the master key used for
// encryption; it may be nil when params.Encryption is codec.EncryptionNone.
func New(blocks rstore.Store, params codec.Params, key []byte, hdr *header.Header) *Store {
	return &Store{blocks: blocks, params: params, key: key, hdr: hdr}
}

// Put hashes data, returns the existing hash if already present in the
// chunk index (deduplication), or encodes and writes a fresh Data block
// and records it in the chunk index.
func (s *Store) Put(data []byte) (header.ChunkHash, error) {
	hash := header.Sum(data)
	if _, ok := s.hdr.ChunkIndex[hash]; ok {
		return hash, nil
	}

	encoded, err := s.params.Encode(data, s.key)
	if err != nil {
		return header.ChunkHash{}, fmt.Errorf("chunkstore: encode: %w", err)
	}

	id := uuid.New()
	if err := s.blocks.Write(rstore.DataKey(id), encoded); err != nil {
		return header.ChunkHash{}, fmt.Errorf("chunkstore: write: %w", err)
	}

	s.hdr.ChunkIndex[hash] = header.ChunkMeta{
		Size:     uint64(len(data)),
		Location: header.BlockLocation{BlockID: id},
	}
	return hash, nil
}

// Get looks up hash in the chunk index and returns the decoded chunk
// bytes. ErrNotFound reports a hash absent from the index; a decode
// failure (including AEAD authentication failure) is returned verbatim
// from the codec package.
var ErrNotFound = fmt.Errorf("chunkstore: chunk not found")

func (s *Store) Get(hash header.ChunkHash) ([]byte, error) {
	meta, ok := s.hdr.ChunkIndex[hash]
	if !ok {
		return nil, ErrNotFound
	}
	if meta.Location.Packed() {
		return nil, fmt.Errorf("chunkstore: chunk %s is stored in a pack, not a direct block", hash)
	}

	raw, ok, err := s.blocks.Read(rstore.DataKey(meta.Location.BlockID))
	if err != nil {
		return nil, fmt.Errorf("chunkstore: read: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	decoded, err := s.params.Decode(raw, s.key)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: decode: %w", err)
	}
	return decoded, nil
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
