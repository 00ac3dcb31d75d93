package storage

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerBlobStore keeps blobs in an embedded badger database instead of a
// directory of files. Same contract as FileBlobStore; useful when a vault
// holds many small external payloads.
type BadgerBlobStore struct {
	db *badger.DB
}

func NewBadgerBlobStore(dir string) (*BadgerBlobStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerBlobStore{db: db}, nil
}

func (b *BadgerBlobStore) Put(_ context.Context, id string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(id), data)
	})
}

func (b *BadgerBlobStore) Get(_ context.Context, id string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerBlobStore) Delete(_ context.Context, id string) error {
	// badger's Delete on an absent key already succeeds, matching the
	// tolerated out-of-band deletion case.
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(id))
	})
}

func (b *BadgerBlobStore) IDs(_ context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *BadgerBlobStore) Close() error { return b.db.Close() }
