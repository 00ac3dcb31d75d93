package vault

import (
	"encoding/binary"
	"fmt"

	"vaultcraft/internal/crypto"
)

// Container file layout, all integers big-endian, no delimiters:
//
//	magic    [4]byte "VCLT"
//	version  uint16
//	kdfM     uint32
//	kdfT     uint32
//	kdfP     uint8
//	salt     [32]byte
//	keywrap  uint32 length || bytes   AEAD_KEK(root key)
//	index    uint32 length || bytes   AEAD_indexKey(CBOR entries)
//
// The keywrap doubles as the wrong-password check: failing to open it is
// the only signal, never a plaintext heuristic. The index ciphertext gets
// a fresh nonce on every save (the AEAD blobs are nonce-prefixed).
const (
	FormatVersion = 1

	aadKeyWrap = "vaultcraft/keywrap/v1"
	aadIndex   = "vaultcraft/index/v1"

	// Framing refuses blobs past this size; the index of a personal
	// vault is nowhere near it and it bounds allocations on hostile input.
	maxBlobLen = 64 << 20
)

var magic = [4]byte{'V', 'C', 'L', 'T'}

// Container is the decoded on-disk structure: everything needed to derive
// the key and decrypt the index, nothing decrypted.
type Container struct {
	Version uint16
	KDF     crypto.KDFParams
	KeyWrap []byte
	Index   []byte
}

func (c *Container) Encode() []byte {
	n := 4 + 2 + 4 + 4 + 1 + crypto.SaltSize + 4 + len(c.KeyWrap) + 4 + len(c.Index)
	out := make([]byte, 0, n)
	out = append(out, magic[:]...)
	out = binary.BigEndian.AppendUint16(out, c.Version)
	out = binary.BigEndian.AppendUint32(out, c.KDF.M)
	out = binary.BigEndian.AppendUint32(out, c.KDF.T)
	out = append(out, c.KDF.P)
	out = append(out, c.KDF.Salt...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(c.KeyWrap)))
	out = append(out, c.KeyWrap...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(c.Index)))
	out = append(out, c.Index...)
	return out
}

// DecodeContainer parses a container file. Every structural violation is
// ErrCorruptVault; no key material is touched here.
func DecodeContainer(b []byte) (*Container, error) {
	r := reader{buf: b}

	var m [4]byte
	if !r.bytes(m[:]) || m != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptVault)
	}
	var c Container
	if !r.uint16(&c.Version) {
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptVault)
	}
	if c.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptVault, c.Version)
	}
	var p [1]byte
	if !r.uint32(&c.KDF.M) || !r.uint32(&c.KDF.T) || !r.bytes(p[:]) {
		return nil, fmt.Errorf("%w: truncated KDF parameters", ErrCorruptVault)
	}
	c.KDF.P = p[0]
	c.KDF.Salt = make([]byte, crypto.SaltSize)
	if !r.bytes(c.KDF.Salt) {
		return nil, fmt.Errorf("%w: truncated salt", ErrCorruptVault)
	}

	var err error
	if c.KeyWrap, err = r.blob(); err != nil {
		return nil, fmt.Errorf("%w: keywrap: %v", ErrCorruptVault, err)
	}
	if c.Index, err = r.blob(); err != nil {
		return nil, fmt.Errorf("%w: index: %v", ErrCorruptVault, err)
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptVault, len(r.buf))
	}
	return &c, nil
}

type reader struct{ buf []byte }

func (r *reader) bytes(dst []byte) bool {
	if len(r.buf) < len(dst) {
		return false
	}
	copy(dst, r.buf)
	r.buf = r.buf[len(dst):]
	return true
}

func (r *reader) uint16(dst *uint16) bool {
	if len(r.buf) < 2 {
		return false
	}
	*dst = binary.BigEndian.Uint16(r.buf)
	r.buf = r.buf[2:]
	return true
}

func (r *reader) uint32(dst *uint32) bool {
	if len(r.buf) < 4 {
		return false
	}
	*dst = binary.BigEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return true
}

func (r *reader) blob() ([]byte, error) {
	var n uint32
	if !r.uint32(&n) {
		return nil, fmt.Errorf("truncated length")
	}
	if n > maxBlobLen {
		return nil, fmt.Errorf("length %d exceeds limit", n)
	}
	if uint32(len(r.buf)) < n {
		return nil, fmt.Errorf("truncated body")
	}
	out := make([]byte, n)
	copy(out, r.buf)
	r.buf = r.buf[n:]
	return out, nil
}
