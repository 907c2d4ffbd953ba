package objectrepo

import (
	"log/slog"

	"github.com/google/uuid"

	"objectrepo/internal/chunker"
	"objectrepo/internal/codec"
	"objectrepo/internal/header"
	"objectrepo/internal/keymat"
	"objectrepo/internal/lockmgr"
	"objectrepo/internal/logging"
)

// OpenMode selects the Open/Create handshake behavior (spec.md §4.10).
type OpenMode int

const (
	// ModeOpen requires an existing repository; fails with ErrNotFound
	// if none is present.
	ModeOpen OpenMode = iota
	// ModeCreateNew requires no existing repository; fails with
	// ErrAlreadyExists if one is present.
	ModeCreateNew
	// ModeCreateOrOpen opens an existing repository or creates one if
	// absent.
	ModeCreateOrOpen
)

// Options configures Open/Create. The zero value is not directly
// usable as the Chunking/Packing/Encryption defaults must be resolved
// first; Open/Create apply defaults internally before validating.
//
// Defaults, adopted from the original implementation's RepositoryConfig
// (SPEC_FULL.md section D.5): content-defined chunking at 2^20 bytes,
// no packing, no compression, no encryption, Interactive KDF cost.
type Options struct {
	Mode OpenMode

	// Password authenticates and derives the encryption key. Required
	// iff Encryption is not codec.EncryptionNone; forbidden otherwise
	// (spec.md §4.10).
	Password []byte

	Chunking    chunker.Params
	Packing     header.PackingParams
	Compression codec.Compression
	Encryption  codec.EncryptionAlgo

	KDFMemory     keymat.ResourceLimit
	KDFOperations keymat.ResourceLimit

	// LockStrategy governs cross-process lock conflicts at Open/Create.
	LockStrategy lockmgr.Strategy
	// LockContext is the caller's opaque identity (e.g. hostname+pid),
	// stored in the Lock block.
	LockContext []byte
	// StaleCheck decides whether an existing Lock block may be taken
	// over; nil treats any existing lock as live.
	StaleCheck lockmgr.StaleCheck

	// Logger receives lifecycle events (open, commit, rollback, clean,
	// lock acquire/release). A discard logger is used if nil.
	Logger *slog.Logger
}

// withDefaults returns a copy of o with zero-valued fields resolved to
// the original implementation's defaults. KDFMemory, KDFOperations,
// Compression, and Encryption all default correctly from Go's zero
// value already (Interactive, CompressionNone, EncryptionNone); only
// Chunking needs an explicit nonzero default.
func (o Options) withDefaults() Options {
	if o.Chunking == (chunker.Params{}) {
		o.Chunking = chunker.Params{Kind: chunker.KindContentDefined, Bits: 20}
	}
	o.Logger = logging.Default(o.Logger)
	return o
}

// formatVersionID is a deterministic v5 UUID derived from this
// module's on-disk format version, stored in the Version block and
// checked before anything is decrypted (spec.md §6).
var formatVersionNamespace = uuid.MustParse("2f6a0b2e-4b0a-4f8e-9a1d-0123456789ab")

func formatVersionID(v uint32) uuid.UUID {
	return uuid.NewSHA1(formatVersionNamespace, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

var currentFormatVersionID = formatVersionID(header.FormatVersion)
