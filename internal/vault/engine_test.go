package vault

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) (Vault, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.vlt")
	v := New(path)
	require.NoError(t, v.Create(context.Background(), []byte("pw1")))
	return v, path
}

func blobFiles(t *testing.T, containerPath string) []string {
	t.Helper()
	ents, err := os.ReadDir(filepath.Join(filepath.Dir(containerPath), "files"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range ents {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateEmptyIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	v.Lock()

	v2 := New(path)
	require.NoError(t, v2.Unlock(ctx, []byte("pw1")))
	defer v2.Lock()
	infos, err := v2.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestCreateAlreadyExists(t *testing.T) {
	v, path := newTestVault(t)
	v.Lock()
	err := New(path).Create(context.Background(), []byte("other"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSetSaveUnlockGet(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	require.NoError(t, v.Set(ctx, "hello", []byte("world")))
	require.NoError(t, v.Save(ctx))
	v.Lock()

	v2 := New(path)
	require.NoError(t, v2.Unlock(ctx, []byte("pw1")))
	defer v2.Lock()

	got, err := v2.Get(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, KindInline, got.Kind)
	assert.Equal(t, []byte("world"), got.Data)

	infos, err := v2.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "hello", infos[0].Key)
	assert.Equal(t, KindInline, infos[0].Kind)
}

func TestUnlockWrongPassword(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	require.NoError(t, v.Set(ctx, "k", []byte("v")))
	require.NoError(t, v.Save(ctx))
	v.Lock()

	err := New(path).Unlock(ctx, []byte("not-the-password"))
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestUnlockCorruptContainer(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	v.Lock()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)/2], 0600))

	err = New(path).Unlock(ctx, []byte("pw1"))
	assert.ErrorIs(t, err, ErrCorruptVault)
}

func TestUpsertKeepsOneEntryAndLatestValue(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	defer v.Lock()

	require.NoError(t, v.Set(ctx, "key", []byte("v1")))
	require.NoError(t, v.Set(ctx, "key", []byte("v2")))

	infos, err := v.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	got, err := v.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got.Data)
}

func TestListInsertionOrderStableAcrossUpdate(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	defer v.Lock()

	require.NoError(t, v.Set(ctx, "a", []byte("1")))
	require.NoError(t, v.Set(ctx, "b", []byte("2")))
	require.NoError(t, v.Set(ctx, "c", []byte("3")))
	// Updating "a" must not move it to the end.
	require.NoError(t, v.Set(ctx, "a", []byte("1+")))

	infos, err := v.List(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(infos))
	for _, in := range infos {
		keys = append(keys, in.Key)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestDeleteFinality(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	defer v.Lock()

	require.NoError(t, v.Set(ctx, "gone", []byte("x")))
	require.NoError(t, v.Delete(ctx, "gone"))

	_, err := v.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, v.Delete(ctx, "gone"), ErrKeyNotFound)
}

func TestSetEmptyKeyRejected(t *testing.T) {
	v, _ := newTestVault(t)
	defer v.Lock()
	assert.ErrorIs(t, v.Set(context.Background(), "", []byte("v")), ErrInvalidKey)
}

func TestOperationsRequireUnlocked(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	v.Lock()

	v2 := New(path)
	assert.ErrorIs(t, v2.Set(ctx, "k", []byte("v")), ErrLocked)
	_, err := v2.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrLocked)
	_, err = v2.List(ctx)
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, v2.Delete(ctx, "k"), ErrLocked)
	assert.ErrorIs(t, v2.Clear(ctx), ErrLocked)
	assert.ErrorIs(t, v2.Save(ctx), ErrLocked)
}

func TestUnsavedMutationsNeverReachDisk(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	require.NoError(t, v.Set(ctx, "secret", []byte("key")))
	// No Save: the process "crashes" here.
	v.Lock()

	v2 := New(path)
	require.NoError(t, v2.Unlock(ctx, []byte("pw1")))
	defer v2.Lock()
	infos, err := v2.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestCrashBeforeRenameLeavesContainerIntact(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	require.NoError(t, v.Set(ctx, "k", []byte("v")))
	require.NoError(t, v.Save(ctx))
	v.Lock()

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Simulate a crash after the temporary file write but before rename:
	// a stray temp file next to the container, never renamed over it.
	stray := filepath.Join(filepath.Dir(path), ".vault.vlt.tmp-crash")
	require.NoError(t, os.WriteFile(stray, []byte("half-written"), 0600))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	v2 := New(path)
	require.NoError(t, v2.Unlock(ctx, []byte("pw1")))
	v2.Lock()
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)

	src := filepath.Join(t.TempDir(), "img.png")
	payload := make([]byte, 4096)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, payload, 0600))

	require.NoError(t, v.SetFile(ctx, "img", src, "image/png"))
	require.NoError(t, v.Save(ctx))
	v.Lock()

	v2 := New(path)
	require.NoError(t, v2.Unlock(ctx, []byte("pw1")))
	defer v2.Lock()

	got, err := v2.Get(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, KindExternalFile, got.Kind)
	assert.Equal(t, FileImage, got.FileKind)
	out, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	dest := t.TempDir()
	p, err := v2.GetFile(ctx, "img", dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "img.png"), p)
	out, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDeleteFileRemovesBlob(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	defer v.Lock()

	src := filepath.Join(t.TempDir(), "doc.bin")
	require.NoError(t, os.WriteFile(src, []byte("binary-content"), 0600))
	require.NoError(t, v.SetFile(ctx, "doc", src, "file/bin"))
	require.Len(t, blobFiles(t, path), 1)

	require.NoError(t, v.Delete(ctx, "doc"))
	assert.Empty(t, blobFiles(t, path))
}

func TestReplaceFileMintsFreshID(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	defer v.Lock()

	src := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(src, []byte("one"), 0600))
	require.NoError(t, v.SetFile(ctx, "doc", src, "file/bin"))
	first := blobFiles(t, path)
	require.Len(t, first, 1)

	require.NoError(t, os.WriteFile(src, []byte("two"), 0600))
	require.NoError(t, v.SetFile(ctx, "doc", src, "file/bin"))
	second := blobFiles(t, path)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0], second[0])
}

func TestInlineOverFileDropsBlob(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	defer v.Lock()

	src := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(src, []byte("blob"), 0600))
	require.NoError(t, v.SetFile(ctx, "k", src, "file/bin"))
	require.Len(t, blobFiles(t, path), 1)

	require.NoError(t, v.Set(ctx, "k", []byte("now inline")))
	assert.Empty(t, blobFiles(t, path))

	got, err := v.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, KindInline, got.Kind)
	assert.Equal(t, []byte("now inline"), got.Data)
}

func TestClearRemovesEntriesAndBlobs(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	defer v.Lock()

	src := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0600))
	require.NoError(t, v.Set(ctx, "a", []byte("1")))
	require.NoError(t, v.SetFile(ctx, "b", src, "file/bin"))

	require.NoError(t, v.Clear(ctx))
	infos, err := v.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
	assert.Empty(t, blobFiles(t, path))
}

func TestTamperedBlobFailsClosed(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	defer v.Lock()

	src := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0600))
	require.NoError(t, v.SetFile(ctx, "f", src, "file/bin"))

	names := blobFiles(t, path)
	require.Len(t, names, 1)
	blobPath := filepath.Join(filepath.Dir(path), "files", names[0])
	raw, err := os.ReadFile(blobPath)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(blobPath, raw, 0600))

	_, err = v.Get(ctx, "f")
	assert.Error(t, err)
}

func TestUnlockTamperedIndexReportsCorruption(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	require.NoError(t, v.Set(ctx, "k", []byte("v")))
	require.NoError(t, v.Save(ctx))
	v.Lock()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	c, err := DecodeContainer(raw)
	require.NoError(t, err)
	c.Index[len(c.Index)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, c.Encode(), 0600))

	// The password is correct, so this must not read as a password error.
	err = New(path).Unlock(ctx, []byte("pw1"))
	assert.ErrorIs(t, err, ErrCorruptVault)
	assert.NotErrorIs(t, err, ErrInvalidPassword)
}

func TestFileEntryWithoutRefFailsClosed(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	defer v.Lock()

	// A buggy writer could persist a file-kind entry with no reference;
	// reading it back must surface corruption, not panic.
	e := v.(*engine)
	e.entries = append(e.entries, &Entry{Key: "bad", Kind: KindExternalFile})
	e.pos["bad"] = len(e.entries) - 1

	_, err := v.Get(ctx, "bad")
	assert.ErrorIs(t, err, ErrCorruptVault)
	_, err = v.GetFile(ctx, "bad", t.TempDir())
	assert.ErrorIs(t, err, ErrCorruptVault)
}

func TestFailedUnlockLeavesNoResidue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.vlt")

	err := New(path).Unlock(context.Background(), []byte("pw"))
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(dir, "files"))
	assert.True(t, os.IsNotExist(err), "read path created the blob directory")
}

func TestSecondSessionBlockedWhileUnlocked(t *testing.T) {
	ctx := context.Background()
	v, path := newTestVault(t)
	defer v.Lock()

	err := New(path).Unlock(ctx, []byte("pw1"))
	assert.ErrorIs(t, err, ErrBusy)
}
