package chunkstore

import (
	"bytes"
	"testing"

	"objectrepo/blockstore/memstore"
	"objectrepo/internal/codec"
	"objectrepo/internal/header"
	"objectrepo/internal/rstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	hdr := header.New()
	s := New(memstore.New(), codec.Params{Compression: codec.NoCompression, Encryption: codec.EncryptionNone}, nil, hdr)

	data := []byte("hello chunk store")
	hash, err := s.Put(data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestPutDeduplicatesIdenticalContent(t *testing.T) {
	hdr := header.New()
	store := memstore.New()
	s := New(store, codec.Params{Compression: codec.NoCompression, Encryption: codec.EncryptionNone}, nil, hdr)

	data := []byte("repeated payload")
	h1, err := s.Put(data)
	if err != nil {
		t.Fatalf("put 1: %v", err)
	}
	h2, err := s.Put(append([]byte(nil), data...))
	if err != nil {
		t.Fatalf("put 2: %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected identical content to hash the same")
	}

	ids, err := store.List(rstore.KindData)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly one stored Data block after dedup, got %d", len(ids))
	}
}

func TestGetMissingHash(t *testing.T) {
	hdr := header.New()
	s := New(memstore.New(), codec.Params{Compression: codec.NoCompression, Encryption: codec.EncryptionNone}, nil, hdr)

	if _, err := s.Get(header.Sum([]byte("never written"))); err == nil {
		t.Fatal("expected error for an unknown chunk hash")
	}
}

func TestGetAuthenticationFailure(t *testing.T) {
	hdr := header.New()
	store := memstore.New()
	key := make([]byte, 32)
	s := New(store, codec.Params{Compression: codec.NoCompression, Encryption: codec.EncryptionXChaCha20Poly1305}, key, hdr)

	hash, err := s.Put([]byte("secret chunk"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	meta := hdr.ChunkIndex[hash]
	blockKey := rstore.DataKey(meta.Location.BlockID)
	raw, ok, err := store.Read(blockKey)
	if err != nil || !ok {
		t.Fatalf("read back raw block: ok=%v err=%v", ok, err)
	}
	corrupted := append([]byte(nil), raw...)
	corrupted[len(corrupted)-1] ^= 0xFF
	if err := store.Write(blockKey, corrupted); err != nil {
		t.Fatalf("write corrupted: %v", err)
	}

	if _, err := s.Get(hash); err == nil {
		t.Fatal("expected authentication failure on corrupted ciphertext")
	}
}
