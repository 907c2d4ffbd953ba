// Package rstore defines the block store contract consumed by the
// repository engine. A block store is an opaque key/bytes map; the
// engine never assumes anything about how a backend persists data
// beyond the guarantees documented on the Store interface.
package rstore

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies which namespace a block key belongs to.
type Kind int

const (
	// KindData holds encoded chunk or pack bytes.
	KindData Kind = iota
	// KindLock holds the opaque cross-process lock context.
	KindLock
	// KindHeader holds an encoded serialized Header.
	KindHeader
	// KindSuper is the singleton plaintext Superblock.
	KindSuper
	// KindVersion is the singleton disk-format version marker.
	KindVersion
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindLock:
		return "lock"
	case KindHeader:
		return "header"
	case KindSuper:
		return "super"
	case KindVersion:
		return "version"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Key identifies a single block. Super and Version are singletons: their
// ID field is ignored and must be the zero UUID.
type Key struct {
	Kind Kind
	ID   uuid.UUID
}

// DataKey returns a key for a Data block with the given id.
func DataKey(id uuid.UUID) Key { return Key{Kind: KindData, ID: id} }

// LockKey returns a key for a Lock block with the given id.
func LockKey(id uuid.UUID) Key { return Key{Kind: KindLock, ID: id} }

// HeaderKey returns a key for a Header block with the given id.
func HeaderKey(id uuid.UUID) Key { return Key{Kind: KindHeader, ID: id} }

// SuperKey is the well-known key of the singleton Superblock.
var SuperKey = Key{Kind: KindSuper}

// VersionKey is the well-known key of the singleton Version block.
var VersionKey = Key{Kind: KindVersion}

// ErrAbsent is returned by implementations that distinguish "absent" from
// an empty block; callers should prefer the (bytes, bool, error) form of
// Read and only rely on ErrAbsent when adapting an io.Reader-style API.
var ErrAbsent = errors.New("rstore: block absent")

// Store is the block-store contract. Every method must be atomic: a
// concurrent reader never observes a torn write, and Remove is
// idempotent. Implementations are not required to be safe for
// concurrent use by multiple goroutines; the engine serializes all
// calls to a given Store through an internal mutex (see spec.md §5).
type Store interface {
	// Write stores bytes under key, replacing any previous value.
	Write(key Key, data []byte) error

	// Read returns the bytes stored under key. The second return value
	// is false if no block exists at key; in that case err is nil.
	Read(key Key) (data []byte, ok bool, err error)

	// Remove deletes the block at key. It does not fail if the key is
	// already absent.
	Remove(key Key) error

	// List returns the set of ids currently stored for the given kind.
	// Kind must be KindData, KindLock, or KindHeader; KindSuper and
	// KindVersion are singletons and are not listable.
	List(kind Kind) ([]uuid.UUID, error)
}
