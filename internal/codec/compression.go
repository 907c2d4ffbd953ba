package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// CompressionAlgo selects a compression codec. The zero value is
// CompressionNone, a copy-free passthrough.
type CompressionAlgo int

const (
	CompressionNone CompressionAlgo = iota
	CompressionDeflate
	CompressionLzma
	CompressionLz4
)

func (a CompressionAlgo) String() string {
	switch a {
	case CompressionNone:
		return "none"
	case CompressionDeflate:
		return "deflate"
	case CompressionLzma:
		return "lzma"
	case CompressionLz4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", int(a))
	}
}

// Compression pairs an algorithm with a 0-9 level. Level is ignored by
// CompressionNone and is clamped to each codec's supported range.
type Compression struct {
	Algo  CompressionAlgo
	Level int
}

// NoCompression is the default, copy-free passthrough.
var NoCompression = Compression{Algo: CompressionNone}

// compress returns the compressed form of plaintext. For CompressionNone
// this returns plaintext itself (semantically byte-equal, no copy
// required by the caller since the result is treated as read-only).
func (c Compression) compress(plaintext []byte) ([]byte, error) {
	switch c.Algo {
	case CompressionNone:
		return plaintext, nil
	case CompressionDeflate:
		return compressDeflate(plaintext, c.Level)
	case CompressionLzma:
		return compressLzma(plaintext, c.Level)
	case CompressionLz4:
		return compressLz4(plaintext, c.Level)
	default:
		return nil, fmt.Errorf("codec: unknown compression algorithm %d", c.Algo)
	}
}

// decompress reverses compress.
func (c Compression) decompress(data []byte) ([]byte, error) {
	switch c.Algo {
	case CompressionNone:
		return data, nil
	case CompressionDeflate:
		return decompressDeflate(data)
	case CompressionLzma:
		return decompressLzma(data)
	case CompressionLz4:
		return decompressLz4(data)
	default:
		return nil, fmt.Errorf("codec: unknown compression algorithm %d", c.Algo)
	}
}

func clampLevel(level, min, max int) int {
	if level < min {
		return min
	}
	if level > max {
		return max
	}
	return level
}

func compressDeflate(plaintext []byte, level int) ([]byte, error) {
	level = clampLevel(level, flate.HuffmanOnly, flate.BestCompression)
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("deflate: new writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("deflate: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate: close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressDeflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("deflate: read: %w", err)
	}
	return out, nil
}

// lzmaDictCap maps a 0-9 level onto a dictionary capacity: larger
// dictionaries compress better at the cost of memory, mirroring the
// spirit of the 0-9 scale the other codecs use. xz/lzma has no notion
// of a fast/best "level" knob beyond dictionary size and match-finder
// depth, so this is the one degree of freedom exposed.
func lzmaDictCap(level int) int {
	level = clampLevel(level, 0, 9)
	const minDictCap = 1 << 16 // 64 KiB, xz/lzma's minimum
	return minDictCap << uint(level)
}

func compressLzma(plaintext []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{DictCap: lzmaDictCap(level), Size: int64(len(plaintext))}
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("lzma: new writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("lzma: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzma: close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("lzma: new reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lzma: read: %w", err)
	}
	return out, nil
}

func compressLz4(plaintext []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	opt := lz4.CompressionLevelOption(lz4CompressionLevel(level))
	if err := w.Apply(opt); err != nil {
		return nil, fmt.Errorf("lz4: apply options: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("lz4: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4: close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressLz4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4: read: %w", err)
	}
	return out, nil
}

// lz4Levels maps a 0-9 level onto lz4's fast/high-compression constants.
// 0 selects the fast (non-HC) path; 1-9 scale across the HC range the
// library exposes.
var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func lz4CompressionLevel(level int) lz4.CompressionLevel {
	return lz4Levels[clampLevel(level, 0, 9)]
}
