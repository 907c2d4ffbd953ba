// Package codec implements the encode/decode pipeline: compression
// followed by authenticated encryption on the way out, and the reverse
// on the way in. Both stages are closed, tagged-variant enums (spec.md
// §9) since the on-disk representation must stay stable across
// versions of this module.
package codec

import "errors"

// ErrAuthFailed is returned when an authenticated decrypt fails. Callers
// must treat this identically to objectrepo.ErrInvalidData; it is
// defined locally so this package has no dependency on the top-level
// package.
var ErrAuthFailed = errors.New("codec: authentication failed")

// Params bundles the compression and encryption choice for one
// repository. It is stored, in plaintext, in the Superblock.
type Params struct {
	Compression Compression
	Encryption  EncryptionAlgo
}

// Encode compresses then encrypts plaintext. key is ignored when
// Encryption is EncryptionNone and may be nil in that case.
func (p Params) Encode(plaintext []byte, key []byte) ([]byte, error) {
	compressed, err := p.Compression.compress(plaintext)
	if err != nil {
		return nil, err
	}
	return p.Encryption.encrypt(compressed, key)
}

// Decode decrypts then decompresses data, the exact reverse of Encode.
func (p Params) Decode(data []byte, key []byte) ([]byte, error) {
	decrypted, err := p.Encryption.decrypt(data, key)
	if err != nil {
		return nil, err
	}
	return p.Compression.decompress(decrypted)
}
