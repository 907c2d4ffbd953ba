package objectrepo

import (
	"errors"
	"fmt"
	"io"

	"objectrepo/internal/codec"
)

// Error kinds surfaced by the repository engine, per spec.md §7. These
// are sentinel values so callers can match with errors.Is; wrapped
// causes (Store, Io) are attached with RepoError.Unwrap.
var (
	ErrNotFound          = errors.New("objectrepo: not found")
	ErrAlreadyExists     = errors.New("objectrepo: already exists")
	ErrInvalidData       = errors.New("objectrepo: invalid data")
	ErrUnsupportedFormat = errors.New("objectrepo: unsupported format")
	ErrUnsupportedStore  = errors.New("objectrepo: unsupported store")
	ErrPassword          = errors.New("objectrepo: password")
	ErrLocked            = errors.New("objectrepo: locked")
	ErrKeyType           = errors.New("objectrepo: key type mismatch")
	ErrInvalidSavepoint  = errors.New("objectrepo: invalid savepoint")
	ErrSerialize         = errors.New("objectrepo: serialize")
	ErrDeserialize       = errors.New("objectrepo: deserialize")
)

// RepoError wraps an underlying Store or I/O error while preserving one
// of the sentinel Err* kinds above for errors.Is matching.
type RepoError struct {
	Kind  error
	Cause error
}

func (e *RepoError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind.Error(), e.Cause)
}

func (e *RepoError) Unwrap() error { return e.Cause }

func (e *RepoError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapStore wraps err (as raised by a block store) with ErrNotFound-style
// classification left to the caller; it always reports as a store error.
func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	return &RepoError{Kind: errStoreKind, Cause: err}
}

func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return &RepoError{Kind: errIOKind, Cause: err}
}

// wrapData classifies an error raised while reading or writing object
// data through the chunk/pack store. An AEAD authentication failure
// anywhere in that path surfaces as ErrInvalidData, per spec.md §7
// ("no plaintext is surfaced") and §8 invariant 7; io.EOF passes
// through unwrapped so Object still satisfies io.Reader's contract;
// anything else is an Io(inner) error.
func wrapData(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	if errors.Is(err, codec.ErrAuthFailed) {
		return &RepoError{Kind: ErrInvalidData, Cause: err}
	}
	return wrapIO(err)
}

// errStoreKind and errIOKind are the Store(inner)/Io(inner) kinds from
// spec.md §7. They are distinct sentinels from the named Err* values
// above because their identity, not their message, is what callers
// match against.
var (
	errStoreKind = errors.New("objectrepo: store error")
	errIOKind    = errors.New("objectrepo: io error")
)

// ErrStore and ErrIO let callers match the wrapped categories with
// errors.Is(err, objectrepo.ErrStore).
var (
	ErrStore = errStoreKind
	ErrIO    = errIOKind
)
