package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

const blobExt = ".blob"

// FileBlobStore keeps one file per blob in a directory sibling to the
// vault container.
type FileBlobStore struct{ dir string }

// NewFileBlobStore touches nothing on disk; the directory appears on the
// first Put so read-only paths on a missing vault leave no residue.
func NewFileBlobStore(dir string) *FileBlobStore {
	return &FileBlobStore{dir: dir}
}

func (f *FileBlobStore) Put(_ context.Context, id string, data []byte) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return err
	}
	// Write-then-rename: a crash mid-Put never leaves a partial blob visible.
	return WriteFileAtomic(filepath.Join(f.dir, id+blobExt), data, 0600)
}

func (f *FileBlobStore) Get(_ context.Context, id string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(f.dir, id+blobExt))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *FileBlobStore) Delete(_ context.Context, id string) error {
	err := os.Remove(filepath.Join(f.dir, id+blobExt))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileBlobStore) IDs(_ context.Context) ([]string, error) {
	ents, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, blobExt))
	}
	return ids, nil
}

func (f *FileBlobStore) Close() error { return nil }

// Dir reports the backing directory, for co-location checks by the engine.
func (f *FileBlobStore) Dir() string { return f.dir }
