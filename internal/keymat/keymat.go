// Package keymat implements key derivation and key material handling:
// deriving a user key from a password via Argon2id, generating random
// master keys, and wrapping/unwrapping the master key under the user
// key. See spec.md §4.1 and §2.3.
package keymat

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"objectrepo/internal/codec"
)

// ResourceLimit selects an Argon2id cost tier, mirroring libsodium's
// Interactive/Moderate/Sensitive presets.
type ResourceLimit int

const (
	Interactive ResourceLimit = iota
	Moderate
	Sensitive
)

func (r ResourceLimit) String() string {
	switch r {
	case Interactive:
		return "interactive"
	case Moderate:
		return "moderate"
	case Sensitive:
		return "sensitive"
	default:
		return "unknown"
	}
}

// memLimitKiB returns the Argon2id memory cost in KiB for the resource
// limit, matching libsodium's crypto_pwhash_argon2id MEMLIMIT constants.
func (r ResourceLimit) memLimitKiB() uint32 {
	switch r {
	case Interactive:
		return 64 * 1024 // 64 MiB
	case Moderate:
		return 256 * 1024 // 256 MiB
	case Sensitive:
		return 1024 * 1024 // 1 GiB
	default:
		return 64 * 1024
	}
}

// opsLimit returns the Argon2id iteration count, matching libsodium's
// OPSLIMIT constants.
func (r ResourceLimit) opsLimit() uint32 {
	switch r {
	case Interactive:
		return 2
	case Moderate:
		return 3
	case Sensitive:
		return 4
	default:
		return 2
	}
}

// KDFParams is stored, in plaintext, in the Superblock: Argon2id is
// memory-hard by design, so recovering these parameters does not weaken
// the derivation, only the salt and password do.
type KDFParams struct {
	Memory     ResourceLimit
	Operations ResourceLimit
	Threads    uint8
	Salt       []byte
}

const (
	saltSize       = 16
	defaultThreads = 4
	derivedKeySize = 32 // chacha20poly1305.KeySize
)

// NewKDFParams generates fresh random salt for the given resource
// limits.
func NewKDFParams(memory, operations ResourceLimit) (KDFParams, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return KDFParams{}, fmt.Errorf("keymat: generate salt: %w", err)
	}
	return KDFParams{Memory: memory, Operations: operations, Threads: defaultThreads, Salt: salt}, nil
}

// DeriveUserKey runs Argon2id over password and returns a derivedKeySize
// byte key suitable for wrapping the master key. This call is
// deliberately slow (spec.md §5: "Every KDF invocation may block for
// seconds, by design").
func DeriveUserKey(password []byte, params KDFParams) []byte {
	threads := params.Threads
	if threads == 0 {
		threads = defaultThreads
	}
	return argon2.IDKey(password, params.Salt, params.Operations.opsLimit(), params.Memory.memLimitKiB(), threads, derivedKeySize)
}

// MasterKey is the random data-encryption key used for all header and
// data blocks. Zero must be called once the key is no longer needed.
type MasterKey struct {
	bytes []byte
}

// GenerateMasterKey returns a fresh random master key of the given size.
func GenerateMasterKey(size int) (MasterKey, error) {
	b, err := codec.GenerateKey(size)
	if err != nil {
		return MasterKey{}, fmt.Errorf("keymat: generate master key: %w", err)
	}
	return MasterKey{bytes: b}, nil
}

// Bytes returns the raw key bytes. The returned slice aliases the
// MasterKey's internal storage; callers must not retain it past a call
// to Zero.
func (k MasterKey) Bytes() []byte { return k.bytes }

// Zero overwrites the key material in place. Call this once a
// MasterKey is no longer needed, e.g. when a Repository handle closes.
func (k MasterKey) Zero() {
	for i := range k.bytes {
		k.bytes[i] = 0
	}
}

// WrapMasterKey encrypts a master key under a user key (derived from a
// password) using the given AEAD algorithm, for storage in the
// Superblock.
func WrapMasterKey(master MasterKey, userKey []byte, algo codec.EncryptionAlgo) ([]byte, error) {
	return algo.Encode(master.bytes, userKey)
}

// UnwrapMasterKey is the inverse of WrapMasterKey. It returns
// ErrAuthFailed-wrapped codec error on a wrong password.
func UnwrapMasterKey(wrapped []byte, userKey []byte, algo codec.EncryptionAlgo) (MasterKey, error) {
	plain, err := algo.Decode(wrapped, userKey)
	if err != nil {
		return MasterKey{}, err
	}
	return MasterKey{bytes: plain}, nil
}
