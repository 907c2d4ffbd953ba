package chunker

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func collectAll(t *testing.T, c Chunker, data []byte, feed int) [][]byte {
	t.Helper()
	var chunks [][]byte
	for len(data) > 0 {
		n := feed
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, c.Write(data[:n])...)
		data = data[n:]
	}
	if last, ok := c.Finish(); ok {
		chunks = append(chunks, last)
	}
	return chunks
}

func reassemble(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestFixedChunkerBoundaries(t *testing.T) {
	data := make([]byte, 250)
	for i := range data {
		data[i] = byte(i)
	}

	c := NewFixed(100)
	chunks := collectAll(t, c, data, 7)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Fatalf("unexpected chunk sizes: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if !bytes.Equal(reassemble(chunks), data) {
		t.Fatal("reassembled data does not match original")
	}
}

func TestFixedChunkerExactMultipleHasNoTrailingChunk(t *testing.T) {
	data := make([]byte, 200)
	c := NewFixed(100)
	chunks := collectAll(t, c, data, 200)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks for an exact multiple, got %d", len(chunks))
	}
}

func TestContentDefinedRoundTrip(t *testing.T) {
	data := make([]byte, 1<<20)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}

	c := NewContentDefined(12) // average 4KiB chunks
	chunks := collectAll(t, c, data, 4096)

	if !bytes.Equal(reassemble(chunks), data) {
		t.Fatal("reassembled data does not match original")
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks from 1MiB input, got %d", len(chunks))
	}

	avg := len(data) / len(chunks)
	if avg < 512 || avg > 32768 {
		t.Fatalf("average chunk size %d far from expected ~4096", avg)
	}
}

func TestContentDefinedDeterministic(t *testing.T) {
	data := make([]byte, 64*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}

	chunksA := collectAll(t, NewContentDefined(10), data, 997)
	chunksB := collectAll(t, NewContentDefined(10), data, 101)

	if len(chunksA) != len(chunksB) {
		t.Fatalf("chunk boundaries depend on feed size: %d vs %d chunks", len(chunksA), len(chunksB))
	}
	for i := range chunksA {
		if !bytes.Equal(chunksA[i], chunksB[i]) {
			t.Fatalf("chunk %d differs between feed sizes", i)
		}
	}
}

func TestContentDefinedEditLocality(t *testing.T) {
	data := make([]byte, 256*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}

	original := collectAll(t, NewContentDefined(12), data, 8192)

	edited := make([]byte, 0, len(data)+8)
	mid := len(data) / 2
	edited = append(edited, data[:mid]...)
	edited = append(edited, []byte("INSERTED")...)
	edited = append(edited, data[mid:]...)

	editedChunks := collectAll(t, NewContentDefined(12), edited, 8192)

	// Chunks before the edit site should be bit-identical.
	matchPrefix := 0
	for matchPrefix < len(original) && matchPrefix < len(editedChunks) &&
		bytes.Equal(original[matchPrefix], editedChunks[matchPrefix]) {
		matchPrefix++
	}
	if matchPrefix == 0 {
		t.Fatal("expected at least one unaffected chunk before the edit site")
	}

	// Chunks after the edit site should resynchronize and again match.
	matchSuffix := 0
	for matchSuffix < len(original) && matchSuffix < len(editedChunks) &&
		bytes.Equal(original[len(original)-1-matchSuffix], editedChunks[len(editedChunks)-1-matchSuffix]) {
		matchSuffix++
	}
	if matchSuffix == 0 {
		t.Fatal("expected at least one unaffected chunk after the edit site")
	}
}

func TestFixedChunkerResettable(t *testing.T) {
	c := NewFixed(10)
	c.Write([]byte("12345"))
	c.Reset()
	chunks := c.Write([]byte("1234567890"))
	if len(chunks) != 1 || string(chunks[0]) != "1234567890" {
		t.Fatalf("expected reset to discard partial state, got %v", chunks)
	}
}
