package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"socialhub/internal/common"
)

// BoltStore keeps one bucket per collection with JSON values.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Collection(name string) Collection {
	return &boltCollection{db: s.db, bucket: []byte(name)}
}

// Migrate creates the buckets up front.
func (s *BoltStore) Migrate(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{Users, Usernames, Relationships, Posts, Messages} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltCollection struct {
	db     *bolt.DB
	bucket []byte
}

func (c *boltCollection) Get(ctx context.Context, id string, dst any) error {
	return c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return common.ErrorNotFound
		}
		data := b.Get([]byte(id))
		if data == nil {
			return common.ErrorNotFound
		}
		return json.Unmarshal(data, dst)
	})
}

func (c *boltCollection) Put(ctx context.Context, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(c.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func (c *boltCollection) Delete(ctx context.Context, id string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

// ForEach copies the bucket out of the read transaction before calling fn.
func (c *boltCollection) ForEach(ctx context.Context, fn func(id string, decode Decoder) error) error {
	type kv struct {
		k string
		v []byte
	}
	var items []kv
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			items = append(items, kv{k: string(k), v: append([]byte(nil), v...)})
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, it := range items {
		v := it.v
		if err := fn(it.k, func(dst any) error { return json.Unmarshal(v, dst) }); err != nil {
			return err
		}
	}
	return nil
}

// Update runs inside a single bbolt write transaction; bbolt allows one
// writer at a time so no conflict is possible.
func (c *boltCollection) Update(ctx context.Context, id string, fn UpdateFunc) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(c.bucket)
		if err != nil {
			return err
		}
		data := b.Get([]byte(id))
		next, err := fn(func(dst any) error { return json.Unmarshal(data, dst) }, data != nil)
		if err != nil {
			return err
		}
		if next == nil {
			if data != nil {
				return b.Delete([]byte(id))
			}
			return nil
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), raw)
	})
}
