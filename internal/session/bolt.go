package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	boltBucket     = []byte("session")
	boltAccessKey  = []byte("access")
	boltRefreshKey = []byte("refresh")
)

// BoltStore keeps credentials in an embedded bbolt database.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time check to ensure BoltStore implements Store
var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bbolt database at path, creating parent
// directories with 0700 permissions if they don't exist.
// The caller must Close the store.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	// bbolt holds an exclusive file lock; fail fast instead of blocking forever
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying bbolt database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// Get returns the stored credentials.
func (b *BoltStore) Get(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return nil
		}
		creds.AccessToken = string(bucket.Get(boltAccessKey))
		creds.RefreshToken = string(bucket.Get(boltRefreshKey))
		return nil
	})
	if err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Set writes both tokens in one transaction. Empty tokens are deleted.
func (b *BoltStore) Set(ctx context.Context, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(boltBucket)
		if err != nil {
			return err
		}
		if err := putOrDelete(bucket, boltAccessKey, creds.AccessToken); err != nil {
			return err
		}
		return putOrDelete(bucket, boltRefreshKey, creds.RefreshToken)
	})
}

// Clear deletes both tokens in one transaction.
func (b *BoltStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return nil
		}
		if err := bucket.Delete(boltAccessKey); err != nil {
			return err
		}
		return bucket.Delete(boltRefreshKey)
	})
}

func putOrDelete(bucket *bbolt.Bucket, key []byte, value string) error {
	if value == "" {
		return bucket.Delete(key)
	}
	return bucket.Put(key, []byte(value))
}
