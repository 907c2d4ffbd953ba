// Package chunker splits an object's byte stream into content-addressed
// chunks, either at fixed byte offsets or at content-defined boundaries
// found by a ZPAQ-style rolling hash. See spec.md §4.2.
package chunker

// Chunker is fed bytes incrementally and yields zero or more completed
// chunks per call. A non-empty residual is kept internally between
// calls; Finish flushes it as a final chunk. Chunkers are resettable at
// a chunk boundary, starting a fresh boundary search exactly where a
// prior chunk ended; the object view itself builds a new Chunker for
// each mid-object write rather than resetting one.
type Chunker interface {
	// Write feeds data into the chunker. It returns the chunks
	// completed as a result of consuming data, in order. The returned
	// slices are independent copies safe for the caller to retain.
	Write(data []byte) [][]byte

	// Finish flushes any residual buffered bytes as a final chunk. It
	// returns (nil, false) if there is no residual to flush.
	Finish() ([]byte, bool)

	// Reset clears all internal state, as if the chunker were newly
	// constructed, so chunking can resume exactly at a chunk boundary.
	Reset()

	// Pending returns the number of residual bytes buffered since the
	// last completed chunk boundary. The object view adds this to its
	// finalized chunk sizes to report its logical size.
	Pending() int
}

// Kind identifies which chunking algorithm produced a repository's
// chunks; stored in the Superblock (spec.md §6).
type Kind int

const (
	KindFixed Kind = iota
	KindContentDefined
)

// Params selects and parameterizes a chunking algorithm.
type Params struct {
	Kind Kind

	// FixedSize is the chunk size in bytes, used when Kind is
	// KindFixed.
	FixedSize int

	// Bits controls the average chunk size (2^Bits bytes) for
	// KindContentDefined.
	Bits uint
}

// New constructs a fresh Chunker for the given params.
func New(p Params) Chunker {
	switch p.Kind {
	case KindContentDefined:
		return NewContentDefined(p.Bits)
	default:
		return NewFixed(p.FixedSize)
	}
}
