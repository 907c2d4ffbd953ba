// Package object implements the seekable object view: a read/write
// handle over a chunk list that lazily re-aligns chunk boundaries on
// mid-object writes while leaving untouched chunks bit-identical. See
// spec.md §4.7.
package object

import (
	"errors"
	"fmt"
	"io"

	"objectrepo/internal/chunker"
	"objectrepo/internal/header"
)

// ChunkStore is the subset of the chunk store / packing layer that the
// object view needs: content-addressed put and get. Both
// chunkstore.Store and pack.Store satisfy this structurally.
type ChunkStore interface {
	Put(data []byte) (header.ChunkHash, error)
	Get(hash header.ChunkHash) ([]byte, error)
}

// View is a seekable handle over an object's chunk list. It is not safe
// for concurrent use; the repository serializes access the same way it
// serializes block store calls (spec.md §5).
//
// Sequential appends (Write calls landing exactly at the current
// logical end) are fed through a single persistent incremental
// chunker, so a stream of small writes does not produce a chunk per
// call. A write landing anywhere else (a mid-object overwrite, or a
// seek-then-write) falls back to the full split-decode-rechunk
// algorithm described in spec.md §4.7: chunks strictly before the
// write are referenced unchanged; everything from the write's start
// onward, including the unmodified suffix of the object, is decoded
// and fed through a fresh chunker. Chunks that come out byte-identical
// to before dedup for free through ChunkStore.Put's hash lookup, which
// is what keeps the resulting chunk count to the edit's locality
// rather than rewriting the whole object.
type View struct {
	store  ChunkStore
	params chunker.Params

	chunks []header.ChunkRef
	pos    uint64

	tail chunker.Chunker
}

// New returns a View over handle's chunk list, positioned at offset 0.
func New(store ChunkStore, params chunker.Params, handle header.ObjectHandle) *View {
	return &View{
		store:  store,
		params: params,
		chunks: append([]header.ChunkRef(nil), handle.Chunks...),
	}
}

// SetStore rebinds the view to a different ChunkStore, leaving its
// chunk list, position, and tail chunker untouched. Needed whenever the
// store backing a still-open view is reconstructed around a new header
// (e.g. after a transaction rollback or savepoint restore), since the
// old store instance would otherwise keep reading and writing through a
// discarded header's chunk index.
func (v *View) SetStore(store ChunkStore) {
	v.store = store
}

// finalizedSize is the sum of chunk sizes in refs.
func finalizedSize(refs []header.ChunkRef) uint64 {
	var n uint64
	for _, r := range refs {
		n += r.Size
	}
	return n
}

// Size returns the object's logical size: finalized chunk bytes plus
// any bytes staged in the active append chunker.
func (v *View) Size() uint64 {
	n := finalizedSize(v.chunks)
	if v.tail != nil {
		n += uint64(v.tail.Pending())
	}
	return n
}

// Chunks returns the object's current chunk list. The caller must call
// Flush first if a tail chunker may still hold unfinalized bytes.
func (v *View) Chunks() []header.ChunkRef {
	return append([]header.ChunkRef(nil), v.chunks...)
}

// Handle flushes any pending writes and returns the resulting
// ObjectHandle, ready to be stored back into the header's instance map.
func (v *View) Handle() (header.ObjectHandle, error) {
	if err := v.Flush(); err != nil {
		return header.ObjectHandle{}, err
	}
	return header.ObjectHandle{Chunks: v.Chunks(), Size: v.Size()}, nil
}

// ContentID flushes any pending writes and returns the object's content
// id, a hash over the ordered chunk-hash sequence.
func (v *View) ContentID() (header.ContentID, error) {
	if err := v.Flush(); err != nil {
		return header.ContentID{}, err
	}
	return header.ContentIDOf(v.chunks), nil
}

// Seek repositions the read/write cursor, per io.Seeker. Seeking past
// the end is permitted; a subsequent write zero-fills the gap.
func (v *View) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(v.pos)
	case io.SeekEnd:
		base = int64(v.Size())
	default:
		return 0, fmt.Errorf("object: invalid whence %d", whence)
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, ErrNegativeSeek
	}
	v.pos = uint64(newPos)
	return newPos, nil
}

// locate returns the index of the chunk containing offset and that
// chunk's starting byte offset, or (len(chunks), finalizedSize(chunks))
// if offset is at or past the end of the finalized chunk list.
func (v *View) locate(offset uint64) (int, uint64) {
	var cur uint64
	for i, c := range v.chunks {
		if offset < cur+c.Size {
			return i, cur
		}
		cur += c.Size
	}
	return len(v.chunks), cur
}

func (v *View) decodeChunk(i int) ([]byte, error) {
	return v.store.Get(v.chunks[i].Hash)
}

// Read copies decoded object bytes starting at the current position
// into buf, per io.Reader; it returns io.EOF once the position reaches
// the object's end. Any pending append-mode writes are finalized first
// so reads always observe their own prior writes.
func (v *View) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if err := v.finalizeTail(); err != nil {
		return 0, err
	}
	total := finalizedSize(v.chunks)
	if v.pos >= total {
		return 0, io.EOF
	}
	idx, chunkStart := v.locate(v.pos)
	data, err := v.decodeChunk(idx)
	if err != nil {
		return 0, fmt.Errorf("object: read: %w", err)
	}
	n := copy(buf, data[v.pos-chunkStart:])
	v.pos += uint64(n)
	return n, nil
}

// Write writes len(buf) bytes at the current position, advancing it,
// per io.Writer. See the View doc comment for the append-vs-rewrite
// split.
func (v *View) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if v.pos == v.Size() {
		return v.writeAppend(buf)
	}
	if err := v.finalizeTail(); err != nil {
		return 0, err
	}
	return v.writeMidObject(buf)
}

func (v *View) writeAppend(buf []byte) (int, error) {
	if v.tail == nil {
		v.tail = chunker.New(v.params)
	}
	for _, cb := range v.tail.Write(buf) {
		hash, err := v.store.Put(cb)
		if err != nil {
			return 0, fmt.Errorf("object: write: %w", err)
		}
		v.chunks = append(v.chunks, header.ChunkRef{Hash: hash, Size: uint64(len(cb))})
	}
	v.pos += uint64(len(buf))
	return len(buf), nil
}

// writeMidObject implements spec.md §4.7's split-preserve-rechunk
// algorithm: bytes before the write are referenced unchanged; the
// write's bytes plus the unmodified suffix of the object are decoded
// and re-chunked as a unit.
func (v *View) writeMidObject(buf []byte) (int, error) {
	pos := v.pos
	total := finalizedSize(v.chunks)

	idx, chunkStart := v.locate(pos)
	var prefix []header.ChunkRef
	var leadIn []byte
	switch {
	case idx >= len(v.chunks):
		prefix = append([]header.ChunkRef(nil), v.chunks...)
		if pos > total {
			leadIn = make([]byte, pos-total)
		}
	case pos == chunkStart:
		prefix = append([]header.ChunkRef(nil), v.chunks[:idx]...)
	default:
		prefix = append([]header.ChunkRef(nil), v.chunks[:idx]...)
		data, err := v.decodeChunk(idx)
		if err != nil {
			return 0, fmt.Errorf("object: write: %w", err)
		}
		leadIn = append([]byte(nil), data[:pos-chunkStart]...)
	}

	writeEnd := pos + uint64(len(buf))
	var suffix []byte
	if writeEnd < total {
		sidx, sChunkStart := v.locate(writeEnd)
		if sidx < len(v.chunks) {
			first, err := v.decodeChunk(sidx)
			if err != nil {
				return 0, fmt.Errorf("object: write: %w", err)
			}
			suffix = append(suffix, first[writeEnd-sChunkStart:]...)
			for j := sidx + 1; j < len(v.chunks); j++ {
				rest, err := v.decodeChunk(j)
				if err != nil {
					return 0, fmt.Errorf("object: write: %w", err)
				}
				suffix = append(suffix, rest...)
			}
		}
	}

	input := make([]byte, 0, len(leadIn)+len(buf)+len(suffix))
	input = append(input, leadIn...)
	input = append(input, buf...)
	input = append(input, suffix...)

	c := chunker.New(v.params)
	newChunks := c.Write(input)
	if last, ok := c.Finish(); ok {
		newChunks = append(newChunks, last)
	}

	newRefs := make([]header.ChunkRef, 0, len(newChunks))
	for _, cb := range newChunks {
		hash, err := v.store.Put(cb)
		if err != nil {
			return 0, fmt.Errorf("object: write: %w", err)
		}
		newRefs = append(newRefs, header.ChunkRef{Hash: hash, Size: uint64(len(cb))})
	}

	v.chunks = append(prefix, newRefs...)
	v.pos = writeEnd
	return len(buf), nil
}

// finalizeTail flushes the active append chunker's residual bytes, if
// any, into a final chunk and clears the chunker.
func (v *View) finalizeTail() error {
	if v.tail == nil {
		return nil
	}
	if last, ok := v.tail.Finish(); ok {
		hash, err := v.store.Put(last)
		if err != nil {
			return fmt.Errorf("object: flush: %w", err)
		}
		v.chunks = append(v.chunks, header.ChunkRef{Hash: hash, Size: uint64(len(last))})
	}
	v.tail = nil
	return nil
}

// Flush finalizes any bytes staged in the append chunker into chunks.
// Mid-object writes have no staged state to flush; they are applied
// synchronously by Write.
func (v *View) Flush() error {
	return v.finalizeTail()
}

// Truncate discards chunks beyond n bytes, splitting and re-encoding
// the chunk straddling n if n falls mid-chunk. Truncating to a length
// beyond the current size zero-fills the gap, symmetric with a Seek
// past the end followed by a Write.
func (v *View) Truncate(n uint64) error {
	if err := v.finalizeTail(); err != nil {
		return err
	}
	total := finalizedSize(v.chunks)
	if n == total {
		if v.pos > n {
			v.pos = n
		}
		return nil
	}
	if n > total {
		savedPos := v.pos
		v.pos = total
		if _, err := v.Write(make([]byte, n-total)); err != nil {
			v.pos = savedPos
			return err
		}
		v.pos = savedPos
		return nil
	}

	idx, chunkStart := v.locate(n)
	if n == chunkStart {
		v.chunks = v.chunks[:idx]
	} else {
		data, err := v.decodeChunk(idx)
		if err != nil {
			return fmt.Errorf("object: truncate: %w", err)
		}
		partial := data[:n-chunkStart]
		hash, err := v.store.Put(partial)
		if err != nil {
			return fmt.Errorf("object: truncate: %w", err)
		}
		v.chunks = append(v.chunks[:idx], header.ChunkRef{Hash: hash, Size: uint64(len(partial))})
	}
	if v.pos > n {
		v.pos = n
	}
	return nil
}

// ErrNegativeSeek is returned by Seek when the resulting position would
// be negative.
var ErrNegativeSeek = errors.New("object: negative seek position")

var (
	_ io.Reader = (*View)(nil)
	_ io.Writer = (*View)(nil)
	_ io.Seeker = (*View)(nil)
)
