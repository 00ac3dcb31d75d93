package crypto

import (
	"crypto/rand"
	"errors"

	xchacha "golang.org/x/crypto/chacha20poly1305"
)

// ErrAuth is returned when an AEAD open fails. A failed open on the
// header keywrap is the only wrong-password signal the vault has.
var ErrAuth = errors.New("crypto: message authentication failed")

// Seal encrypts plaintext with XChaCha20-Poly1305 under a fresh random
// nonce. Output layout: [nonce||ciphertext||tag]. The AAD binds the
// ciphertext to its role (keywrap, index, inline value, blob).
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, xchacha.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out[:len(nonce)], nonce, plaintext, aad)
	return out, nil
}

// Open decrypts data produced by Seal. Any tamper, truncation, wrong
// key or wrong AAD yields ErrAuth.
func Open(key, ciphertext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < xchacha.NonceSizeX+aead.Overhead() {
		return nil, ErrAuth
	}
	nonce := ciphertext[:xchacha.NonceSizeX]
	ct := ciphertext[xchacha.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrAuth
	}
	return pt, nil
}
