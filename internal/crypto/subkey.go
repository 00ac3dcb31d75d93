package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Subkey labels. One root key unlocks the vault; every purpose gets its
// own HKDF expansion so ciphertexts are never interchangeable across roles.
const (
	SubkeyIndex  = "vaultcraft/subkey/index/v1"
	SubkeyInline = "vaultcraft/subkey/inline/v1"
	SubkeyBlob   = "vaultcraft/subkey/blob/v1"
)

// DeriveSubkey expands the vault root key into a purpose-bound 32-byte key.
func DeriveSubkey(root []byte, label string) (key [KeySize]byte) {
	stream := hkdf.New(sha256.New, root, nil, []byte(label))
	if _, err := io.ReadFull(stream, key[:]); err != nil {
		// SHA-256 HKDF cannot fail to produce 32 bytes.
		panic("crypto: hkdf short read: " + err.Error())
	}
	return
}
