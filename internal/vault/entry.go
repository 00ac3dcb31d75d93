package vault

import "strings"

// Kind discriminates how an entry's payload is stored.
type Kind uint8

const (
	KindInline Kind = iota + 1
	KindExternalFile
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindExternalFile:
		return "file"
	default:
		return "unknown"
	}
}

// FileKind is the closed variant behind the CLI's MIME-like type hints.
// Anything unrecognized falls back to a generic binary.
type FileKind uint8

const (
	FileBinary FileKind = iota + 1
	FileImage
	FileText
)

// ParseFileKind maps a declared type hint ("image/png", "file/bin",
// "data/str") to the internal variant.
func ParseFileKind(hint string) FileKind {
	switch {
	case strings.HasPrefix(hint, "image/"):
		return FileImage
	case hint == "data/str" || strings.HasPrefix(hint, "text/"):
		return FileText
	default:
		return FileBinary
	}
}

func (f FileKind) String() string {
	switch f {
	case FileImage:
		return "image"
	case FileText:
		return "text"
	default:
		return "binary"
	}
}

// FileRef points at one encrypted blob in the file store.
type FileRef struct {
	// ID resolves to exactly one blob and is never reused after
	// deletion; replacement always mints a fresh id.
	ID   string   `cbor:"id"`
	Kind FileKind `cbor:"kind"`
	// Type is the hint exactly as the caller declared it, kept for display.
	Type string `cbor:"type"`
	Name string `cbor:"name"`
	Size int64  `cbor:"size"`
	// Sum is blake3-256 of the plaintext, checked on materialization.
	Sum []byte `cbor:"sum"`
}

// Entry is one named record in the vault index. Exactly one of Inline
// and File is set, matching Kind.
type Entry struct {
	Key  string `cbor:"key"`
	Kind Kind   `cbor:"kind"`
	// Inline is the sealed value (nonce-prefixed AEAD output), present
	// iff Kind is KindInline.
	Inline []byte   `cbor:"inline,omitempty"`
	File   *FileRef `cbor:"file,omitempty"`
	// Timestamps are unix seconds, set only by the engine.
	CreatedAt int64 `cbor:"created"`
	UpdatedAt int64 `cbor:"updated"`
}

// EntryInfo is the listing projection: no ciphertext, no blob details.
type EntryInfo struct {
	Key       string
	Kind      Kind
	UpdatedAt int64
}
