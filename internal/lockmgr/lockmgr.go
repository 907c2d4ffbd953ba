// Package lockmgr implements the two-level lock manager (spec.md
// §4.9): an in-process weak-reference table that lets a live handle's
// UUID self-expire when the handle is no longer reachable, plus a
// cross-process advisory lock implemented as a Lock block in the
// backing store, arbitrated by a caller-supplied staleness predicate.
package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"weak"

	"github.com/google/uuid"

	"objectrepo/internal/rstore"
)

// ErrLocked is returned when a lock cannot be acquired under the
// requested strategy.
var ErrLocked = errors.New("lockmgr: locked")

// Strategy selects how Acquire behaves when a resource is already
// locked (spec.md §6).
type Strategy int

const (
	// StrategyAbort returns ErrLocked immediately.
	StrategyAbort Strategy = iota
	// StrategyWait polls until another holder's Lock block is released
	// or ctx is done. A holder in this same process still yields
	// ErrLocked at once.
	StrategyWait
	// StrategyForce releases any existing lock and proceeds.
	StrategyForce
)

var (
	mu        sync.Mutex
	inProcess = map[uuid.UUID]weak.Pointer[uuid.UUID]{}
)

// acquireInProcess claims id in the process-global table. The returned
// pointer must be kept alive by the caller (held inside the Token) for
// as long as the lock should be considered held; once it is no longer
// referenced, the garbage collector is free to clear the weak entry and
// the next Open of this UUID will not see it as locked.
func acquireInProcess(id uuid.UUID, strategy Strategy) (*uuid.UUID, error) {
	mu.Lock()
	defer mu.Unlock()

	if wp, ok := inProcess[id]; ok {
		if live := wp.Value(); live != nil && strategy != StrategyForce {
			return nil, ErrLocked
		}
	}

	ref := new(uuid.UUID)
	*ref = id
	inProcess[id] = weak.Make(ref)
	return ref, nil
}

func releaseInProcess(id uuid.UUID) {
	mu.Lock()
	defer mu.Unlock()
	delete(inProcess, id)
}

// Token represents a held lock. Release must be called exactly once,
// typically from the owning Repository's Close, to remove the Lock
// block and the in-process table entry. Dropping a Token without
// releasing it still self-heals eventually: once the strong reference
// is unreachable, the in-process entry clears on its own, though the
// cross-process Lock block is only removed by an explicit Release.
type Token struct {
	id     uuid.UUID
	ref    *uuid.UUID
	blocks rstore.Store
}

// StaleCheck decides whether an existing Lock block's context bytes
// describe a stale holder (e.g. a dead process) that it is safe to
// take over. Returning true proceeds with acquisition; returning false
// reports ErrLocked.
type StaleCheck func(existingContext []byte) bool

// Acquire attempts to lock id, writing context into the Lock block on
// success. blocks is the backing store the Lock block lives in. stale
// may be nil, in which case any existing Lock block is treated as
// live (never stale).
//
// StrategyWait polls every pollInterval until ctx is cancelled.
func Acquire(ctx context.Context, blocks rstore.Store, id uuid.UUID, strategy Strategy, lockContext []byte, stale StaleCheck) (*Token, error) {
	ref, err := acquireInProcess(id, strategy)
	if err != nil {
		return nil, err
	}

	key := rstore.LockKey(id)
	const pollInterval = 50 * time.Millisecond
poll:
	for {
		existing, ok, err := blocks.Read(key)
		if err != nil {
			releaseInProcess(id)
			return nil, fmt.Errorf("lockmgr: read lock block: %w", err)
		}
		if !ok {
			break poll
		}
		if strategy == StrategyForce || (stale != nil && stale(existing)) {
			break poll
		}
		if strategy != StrategyWait {
			releaseInProcess(id)
			return nil, ErrLocked
		}
		select {
		case <-ctx.Done():
			releaseInProcess(id)
			return nil, fmt.Errorf("lockmgr: %w: %w", ErrLocked, ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	if err := blocks.Write(key, lockContext); err != nil {
		releaseInProcess(id)
		return nil, fmt.Errorf("lockmgr: write lock block: %w", err)
	}

	return &Token{id: id, ref: ref, blocks: blocks}, nil
}

// Release removes the Lock block and the in-process table entry. It is
// idempotent.
func (t *Token) Release() error {
	if t == nil {
		return nil
	}
	releaseInProcess(t.id)
	if t.blocks == nil {
		return nil
	}
	if err := t.blocks.Remove(rstore.LockKey(t.id)); err != nil {
		return fmt.Errorf("lockmgr: remove lock block: %w", err)
	}
	t.blocks = nil
	return nil
}
