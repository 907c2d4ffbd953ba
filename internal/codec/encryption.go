package codec

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptionAlgo selects an authenticated encryption scheme. The zero
// value, EncryptionNone, is a passthrough (no confidentiality, no
// authentication).
type EncryptionAlgo int

const (
	EncryptionNone EncryptionAlgo = iota
	EncryptionXChaCha20Poly1305
)

func (a EncryptionAlgo) String() string {
	switch a {
	case EncryptionNone:
		return "none"
	case EncryptionXChaCha20Poly1305:
		return "xchacha20poly1305"
	default:
		return fmt.Sprintf("encryption(%d)", int(a))
	}
}

// KeySize returns the encryption key size in bytes for this algorithm,
// or 0 if the algorithm takes no key.
func (a EncryptionAlgo) KeySize() int {
	switch a {
	case EncryptionNone:
		return 0
	case EncryptionXChaCha20Poly1305:
		return chacha20poly1305.KeySize
	default:
		return 0
	}
}

// Encode authenticates and encrypts plaintext under key, with no
// compression stage. Used for wrapping key material, where there is
// nothing worth compressing.
func (a EncryptionAlgo) Encode(plaintext, key []byte) ([]byte, error) {
	return a.encrypt(plaintext, key)
}

// Decode is the inverse of Encode.
func (a EncryptionAlgo) Decode(data, key []byte) ([]byte, error) {
	return a.decrypt(data, key)
}

// encrypt returns nonce||ciphertext for XChaCha20Poly1305, or plaintext
// unchanged for EncryptionNone. A fresh random nonce is drawn from
// crypto/rand for every call; AAD is always empty, per spec.md §4.1.
func (a EncryptionAlgo) encrypt(plaintext, key []byte) ([]byte, error) {
	switch a {
	case EncryptionNone:
		return plaintext, nil
	case EncryptionXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("xchacha20poly1305: new aead: %w", err)
		}
		nonce := make([]byte, aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("xchacha20poly1305: generate nonce: %w", err)
		}
		out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
		out = append(out, nonce...)
		out = aead.Seal(out, nonce, plaintext, nil)
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unknown encryption algorithm %d", a)
	}
}

// decrypt reverses encrypt. Any authentication failure is reported as
// ErrAuthFailed; no partial plaintext is ever returned to the caller.
func (a EncryptionAlgo) decrypt(data, key []byte) ([]byte, error) {
	switch a {
	case EncryptionNone:
		return data, nil
	case EncryptionXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("xchacha20poly1305: new aead: %w", err)
		}
		if len(data) < aead.NonceSize() {
			return nil, ErrAuthFailed
		}
		nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
		plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, ErrAuthFailed
		}
		return plaintext, nil
	default:
		return nil, fmt.Errorf("codec: unknown encryption algorithm %d", a)
	}
}

// GenerateKey returns size bytes read from the OS CSPRNG.
func GenerateKey(size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("codec: generate key: %w", err)
	}
	return key, nil
}
