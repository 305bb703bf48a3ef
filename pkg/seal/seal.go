// Package seal implements §4.8's authenticated-encryption wire format:
// AES-256-GCM with a fixed wire layout of nonce(16) ‖ tag(16) ‖ ciphertext.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	nonceLen = 16
	tagLen   = 16
	keyLen   = 32
)

// ErrInvalidInput is returned by Open when the input is too short to
// contain a nonce and tag.
var ErrInvalidInput = errors.New("seal: invalid input")

// ErrNotForMe is returned by Open when the authentication tag does not
// verify under the given key — the router's silent "not addressed to me"
// drop condition.
var ErrNotForMe = errors.New("seal: not for me")

// newGCM builds a GCM instance with a 16-byte nonce and 16-byte tag, the
// layout §4.8 mandates (stdlib's default GCM nonce is 12 bytes; we pass a
// wider nonce through cipher.NewGCMWithNonceSize rather than truncating the
// spec's wire layout to fit the default).
func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("seal: key must be %d bytes, got %d", keyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: new cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, nonceLen)
}

// Seal encrypts plaintext under key, returning nonce(16) ‖ tag(16) ‖
// ciphertext.
func Seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: read nonce: %w", err)
	}

	// cipher.AEAD.Seal appends ciphertext‖tag; §4.8 wants nonce‖tag‖ciphertext,
	// so split and reorder before returning the wire bytes.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	out := make([]byte, 0, nonceLen+tagLen+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// Open decrypts wire bytes produced by Seal under key. A short input
// returns ErrInvalidInput; a tag mismatch returns ErrNotForMe (the router's
// silent-drop condition for packages not addressed to this node).
func Open(wire, key []byte) ([]byte, error) {
	if len(wire) < nonceLen+tagLen {
		return nil, ErrInvalidInput
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := wire[:nonceLen]
	tag := wire[nonceLen : nonceLen+tagLen]
	ct := wire[nonceLen+tagLen:]

	sealed := make([]byte, 0, len(ct)+tagLen)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrNotForMe
	}
	return plaintext, nil
}
