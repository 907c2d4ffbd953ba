package codec

import (
	"bytes"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	cases := []struct {
		name   string
		params Params
		keyLen int
	}{
		{"none/none", Params{NoCompression, EncryptionNone}, 0},
		{"deflate/none", Params{Compression{CompressionDeflate, 6}, EncryptionNone}, 0},
		{"lzma/none", Params{Compression{CompressionLzma, 3}, EncryptionNone}, 0},
		{"lz4/none", Params{Compression{CompressionLz4, 1}, EncryptionNone}, 0},
		{"none/xchacha", Params{NoCompression, EncryptionXChaCha20Poly1305}, EncryptionXChaCha20Poly1305.KeySize()},
		{"deflate/xchacha", Params{Compression{CompressionDeflate, 9}, EncryptionXChaCha20Poly1305}, EncryptionXChaCha20Poly1305.KeySize()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var key []byte
			if tc.keyLen > 0 {
				k, err := GenerateKey(tc.keyLen)
				if err != nil {
					t.Fatalf("generate key: %v", err)
				}
				key = k
			}

			encoded, err := tc.params.Encode(plaintext, key)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			decoded, err := tc.params.Decode(encoded, key)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(decoded, plaintext) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(decoded), len(plaintext))
			}
		})
	}
}

func TestNoCompressionIsPassthrough(t *testing.T) {
	plaintext := []byte("exact bytes, no framing")
	out, err := NoCompression.compress(plaintext)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Fatalf("expected byte-identical passthrough, got %q", out)
	}
}

func TestXChaCha20Poly1305AuthFailure(t *testing.T) {
	key, err := GenerateKey(EncryptionXChaCha20Poly1305.KeySize())
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	params := Params{NoCompression, EncryptionXChaCha20Poly1305}

	encoded, err := params.Encode([]byte("secret payload"), key)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	corrupted := append([]byte(nil), encoded...)
	corrupted[len(corrupted)-1] ^= 0xFF

	if _, err := params.Decode(corrupted, key); err == nil {
		t.Fatal("expected authentication failure, got nil error")
	}
}

func TestXChaCha20Poly1305FreshNoncePerCall(t *testing.T) {
	key, err := GenerateKey(EncryptionXChaCha20Poly1305.KeySize())
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	a, err := EncryptionXChaCha20Poly1305.encrypt([]byte("same plaintext"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := EncryptionXChaCha20Poly1305.encrypt([]byte("same plaintext"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("expected distinct ciphertexts from distinct random nonces")
	}
}
