package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
)

const (
	KeySize  = 32
	SaltSize = 32
)

// KDFParams are the argon2id cost parameters stored in the container
// header. Salt is generated once at vault creation and never changes.
type KDFParams struct {
	M    uint32
	T    uint32
	P    uint8
	Salt []byte
}

// DefaultKDF returns interactive-tier parameters with a fresh salt.
// Existing vaults keep whatever parameters they were created with.
func DefaultKDF() KDFParams {
	salt := make([]byte, SaltSize)
	_, _ = rand.Read(salt)
	return KDFParams{M: 64 * 1024, T: 3, P: 4, Salt: salt}
}

// DeriveKEK derives the key-encryption key from the master password.
// Deterministic for a given password and parameter set.
func DeriveKEK(master []byte, p KDFParams) (kek [KeySize]byte) {
	key := argon2.IDKey(master, p.Salt, p.T, p.M, p.P, KeySize)
	copy(kek[:], key)
	Zero(key)
	return
}
