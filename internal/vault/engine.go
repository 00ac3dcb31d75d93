package vault

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"vaultcraft/internal/crypto"
	"vaultcraft/internal/storage"
)

// Vault is the storage engine session. States: uninitialized → locked →
// unlocked. Everything past Create/Unlock requires the unlocked state;
// mutations stay in memory until Save, which replaces the container
// atomically. Blob operations hit the file store immediately so a deleted
// payload is gone the moment Delete returns.
type Vault interface {
	Create(ctx context.Context, master []byte) error
	Unlock(ctx context.Context, master []byte) error
	Lock()

	Set(ctx context.Context, key string, value []byte) error
	SetFile(ctx context.Context, key, path, typeHint string) error
	Get(ctx context.Context, key string) (Value, error)
	GetFile(ctx context.Context, key, destDir string) (string, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	List(ctx context.Context) ([]EntryInfo, error)
	Save(ctx context.Context) error
}

// Value is the result of Get: decrypted bytes for inline entries, a
// materialized path for external files.
type Value struct {
	Kind     Kind
	FileKind FileKind
	Data     []byte
	Path     string
}

type engine struct {
	path     string
	lockPath string
	store    storage.BlobStore

	version   uint16
	kdf       crypto.KDFParams
	keywrap   []byte
	vrk       [32]byte
	indexKey  [32]byte
	inlineKey [32]byte
	blobKey   [32]byte

	unlocked bool
	flk      *sessionLock
	scratch  string

	entries []*Entry
	pos     map[string]int
}

// New opens a session on the container at path, with blobs in a "files"
// directory next to it. Nothing touches the disk until Create or Unlock.
func New(path string) Vault {
	return NewWithStore(path, storage.NewFileBlobStore(filepath.Join(filepath.Dir(path), "files")))
}

func NewWithStore(path string, blobs storage.BlobStore) Vault {
	return &engine{
		path:     path,
		lockPath: path + ".lock",
		store:    blobs,
		pos:      make(map[string]int),
	}
}

func (e *engine) Create(ctx context.Context, master []byte) error {
	if _, err := os.Stat(e.path); err == nil {
		return ErrAlreadyExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("vault: stat container: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0700); err != nil {
		return fmt.Errorf("vault: create vault directory: %w", err)
	}

	e.version = FormatVersion
	e.kdf = crypto.DefaultKDF()
	kek := crypto.DeriveKEK(master, e.kdf)
	defer crypto.Zero32(&kek)

	if _, err := rand.Read(e.vrk[:]); err != nil {
		return fmt.Errorf("vault: generate root key: %w", err)
	}
	_ = crypto.LockMemory(e.vrk[:])

	wrap, err := crypto.Seal(kek[:], e.vrk[:], []byte(aadKeyWrap))
	if err != nil {
		return err
	}
	e.keywrap = wrap
	e.deriveSubkeys()
	e.entries = nil
	e.pos = make(map[string]int)

	lk, err := acquireLock(e.lockPath)
	if err != nil {
		return err
	}
	e.flk = lk
	e.unlocked = true

	if err := e.Save(ctx); err != nil {
		e.Lock()
		return err
	}
	return nil
}

func (e *engine) Unlock(ctx context.Context, master []byte) error {
	raw, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("vault: read container: %w", err)
	}
	c, err := DecodeContainer(raw)
	if err != nil {
		return err
	}

	kek := crypto.DeriveKEK(master, c.KDF)
	defer crypto.Zero32(&kek)

	root, err := crypto.Open(kek[:], c.KeyWrap, []byte(aadKeyWrap))
	if err != nil {
		return ErrInvalidPassword
	}
	copy(e.vrk[:], root)
	crypto.Zero(root)
	_ = crypto.LockMemory(e.vrk[:])
	e.deriveSubkeys()

	// The keywrap opened, so the password is proven correct; a failed
	// index open past this point means the container was tampered with.
	plain, err := crypto.Open(e.indexKey[:], c.Index, []byte(aadIndex))
	if err != nil {
		crypto.Zero32(&e.vrk)
		return fmt.Errorf("%w: index ciphertext failed authentication", ErrCorruptVault)
	}
	var entries []*Entry
	if err := cbor.Unmarshal(plain, &entries); err != nil {
		crypto.Zero(plain)
		crypto.Zero32(&e.vrk)
		return fmt.Errorf("%w: index payload: %v", ErrCorruptVault, err)
	}
	crypto.Zero(plain)

	lk, err := acquireLock(e.lockPath)
	if err != nil {
		crypto.Zero32(&e.vrk)
		return err
	}

	e.version = c.Version
	e.kdf = c.KDF
	e.keywrap = c.KeyWrap
	e.entries = entries
	e.pos = make(map[string]int, len(entries))
	for i, ent := range entries {
		e.pos[ent.Key] = i
	}
	e.flk = lk
	e.unlocked = true
	return nil
}

func (e *engine) Lock() {
	e.unlocked = false
	_ = crypto.UnlockMemory(e.vrk[:])
	crypto.Zero32(&e.vrk)
	crypto.Zero32(&e.indexKey)
	crypto.Zero32(&e.inlineKey)
	crypto.Zero32(&e.blobKey)
	e.entries = nil
	e.pos = make(map[string]int)
	if e.scratch != "" {
		_ = os.RemoveAll(e.scratch)
		e.scratch = ""
	}
	e.flk.release()
	e.flk = nil
}

func (e *engine) Set(ctx context.Context, key string, value []byte) error {
	if !e.unlocked {
		return ErrLocked
	}
	if key == "" {
		return ErrInvalidKey
	}
	ct, err := crypto.Seal(e.inlineKey[:], value, inlineAAD(key))
	if err != nil {
		return err
	}
	prev := e.lookup(key)
	if prev != nil && prev.Kind == KindExternalFile {
		// Kind change: the old blob is dead and its id is never reused.
		if err := e.store.Delete(ctx, prev.File.ID); err != nil {
			return fmt.Errorf("vault: drop replaced blob: %w", err)
		}
	}
	e.upsert(key, func(ent *Entry) {
		ent.Kind = KindInline
		ent.Inline = ct
		ent.File = nil
	})
	return nil
}

func (e *engine) SetFile(ctx context.Context, key, path, typeHint string) error {
	if !e.unlocked {
		return ErrLocked
	}
	if key == "" {
		return ErrInvalidKey
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("vault: read source file: %w", err)
	}
	sum := blake3.Sum256(content)
	ref := &FileRef{
		ID:   uuid.NewString(),
		Kind: ParseFileKind(typeHint),
		Type: typeHint,
		Name: filepath.Base(path),
		Size: int64(len(content)),
		Sum:  sum[:],
	}
	ct, err := crypto.Seal(e.blobKey[:], content, blobAAD(ref.ID))
	crypto.Zero(content)
	if err != nil {
		return err
	}
	if err := e.store.Put(ctx, ref.ID, ct); err != nil {
		return fmt.Errorf("vault: store blob: %w", err)
	}
	prev := e.lookup(key)
	if prev != nil && prev.Kind == KindExternalFile {
		if err := e.store.Delete(ctx, prev.File.ID); err != nil {
			return fmt.Errorf("vault: drop replaced blob: %w", err)
		}
	}
	e.upsert(key, func(ent *Entry) {
		ent.Kind = KindExternalFile
		ent.Inline = nil
		ent.File = ref
	})
	return nil
}

func (e *engine) Get(ctx context.Context, key string) (Value, error) {
	if !e.unlocked {
		return Value{}, ErrLocked
	}
	ent := e.lookup(key)
	if ent == nil {
		return Value{}, ErrKeyNotFound
	}
	switch ent.Kind {
	case KindInline:
		pt, err := crypto.Open(e.inlineKey[:], ent.Inline, inlineAAD(key))
		if err != nil {
			return Value{}, fmt.Errorf("vault: decrypt %q: %w", key, err)
		}
		return Value{Kind: KindInline, Data: pt}, nil
	case KindExternalFile:
		if e.scratch == "" {
			dir, err := os.MkdirTemp("", "vaultcraft-*")
			if err != nil {
				return Value{}, fmt.Errorf("vault: scratch dir: %w", err)
			}
			e.scratch = dir
		}
		path, err := e.materialize(ctx, ent, e.scratch)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindExternalFile, FileKind: ent.File.Kind, Path: path}, nil
	default:
		return Value{}, fmt.Errorf("%w: entry %q has kind %d", ErrCorruptVault, key, ent.Kind)
	}
}

func (e *engine) GetFile(ctx context.Context, key, destDir string) (string, error) {
	if !e.unlocked {
		return "", ErrLocked
	}
	ent := e.lookup(key)
	if ent == nil {
		return "", ErrKeyNotFound
	}
	if ent.Kind != KindExternalFile {
		return "", fmt.Errorf("vault: entry %q is not a file", key)
	}
	return e.materialize(ctx, ent, destDir)
}

func (e *engine) materialize(ctx context.Context, ent *Entry, destDir string) (string, error) {
	if ent.File == nil {
		return "", fmt.Errorf("%w: entry %q marked as a file but carries no file reference", ErrCorruptVault, ent.Key)
	}
	ct, err := e.store.Get(ctx, ent.File.ID)
	if err != nil {
		return "", fmt.Errorf("vault: load blob %s: %w", ent.File.ID, err)
	}
	pt, err := crypto.Open(e.blobKey[:], ct, blobAAD(ent.File.ID))
	if err != nil {
		return "", fmt.Errorf("vault: decrypt blob %s: %w", ent.File.ID, err)
	}
	if sum := blake3.Sum256(pt); !bytes.Equal(sum[:], ent.File.Sum) {
		crypto.Zero(pt)
		return "", fmt.Errorf("vault: blob %s checksum mismatch", ent.File.ID)
	}
	out := filepath.Join(destDir, ent.File.Name)
	if err := storage.WriteFileAtomic(out, pt, 0600); err != nil {
		crypto.Zero(pt)
		return "", fmt.Errorf("vault: materialize %q: %w", ent.Key, err)
	}
	crypto.Zero(pt)
	return out, nil
}

func (e *engine) Delete(ctx context.Context, key string) error {
	if !e.unlocked {
		return ErrLocked
	}
	i, ok := e.pos[key]
	if !ok {
		return ErrKeyNotFound
	}
	ent := e.entries[i]
	if ent.Kind == KindExternalFile {
		if err := e.store.Delete(ctx, ent.File.ID); err != nil {
			return fmt.Errorf("vault: delete blob: %w", err)
		}
	}
	e.entries = append(e.entries[:i], e.entries[i+1:]...)
	delete(e.pos, key)
	for j := i; j < len(e.entries); j++ {
		e.pos[e.entries[j].Key] = j
	}
	return nil
}

func (e *engine) Clear(ctx context.Context) error {
	if !e.unlocked {
		return ErrLocked
	}
	for _, ent := range e.entries {
		if ent.Kind == KindExternalFile {
			if err := e.store.Delete(ctx, ent.File.ID); err != nil {
				return fmt.Errorf("vault: delete blob: %w", err)
			}
		}
	}
	e.entries = nil
	e.pos = make(map[string]int)
	return nil
}

func (e *engine) List(ctx context.Context) ([]EntryInfo, error) {
	if !e.unlocked {
		return nil, ErrLocked
	}
	out := make([]EntryInfo, 0, len(e.entries))
	for _, ent := range e.entries {
		out = append(out, EntryInfo{Key: ent.Key, Kind: ent.Kind, UpdatedAt: ent.UpdatedAt})
	}
	return out, nil
}

func (e *engine) Save(ctx context.Context) error {
	if !e.unlocked {
		return ErrLocked
	}
	plain, err := cbor.Marshal(e.entries)
	if err != nil {
		return fmt.Errorf("vault: encode index: %w", err)
	}
	sealed, err := crypto.Seal(e.indexKey[:], plain, []byte(aadIndex))
	crypto.Zero(plain)
	if err != nil {
		return err
	}
	c := Container{
		Version: e.version,
		KDF:     e.kdf,
		KeyWrap: e.keywrap,
		Index:   sealed,
	}
	if err := storage.WriteFileAtomic(e.path, c.Encode(), 0600); err != nil {
		return fmt.Errorf("vault: save container: %w", err)
	}
	return nil
}

func (e *engine) lookup(key string) *Entry {
	if i, ok := e.pos[key]; ok {
		return e.entries[i]
	}
	return nil
}

// upsert applies mut to the existing entry (keeping its index position and
// creation time) or appends a fresh one. UpdatedAt is always refreshed.
func (e *engine) upsert(key string, mut func(*Entry)) {
	now := time.Now().Unix()
	if i, ok := e.pos[key]; ok {
		ent := e.entries[i]
		mut(ent)
		ent.UpdatedAt = now
		return
	}
	ent := &Entry{Key: key, CreatedAt: now, UpdatedAt: now}
	mut(ent)
	e.entries = append(e.entries, ent)
	e.pos[key] = len(e.entries) - 1
}

func (e *engine) deriveSubkeys() {
	e.indexKey = crypto.DeriveSubkey(e.vrk[:], crypto.SubkeyIndex)
	e.inlineKey = crypto.DeriveSubkey(e.vrk[:], crypto.SubkeyInline)
	e.blobKey = crypto.DeriveSubkey(e.vrk[:], crypto.SubkeyBlob)
}

func inlineAAD(key string) []byte { return []byte("inline:" + key) }
func blobAAD(id string) []byte    { return []byte("blob:" + id) }
