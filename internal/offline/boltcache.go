package offline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltCacheStorage is the durable CacheStorage used in production: one
// bucket per cache generation, request URL as key, JSON-encoded response
// record as value. Deleting a generation drops the whole bucket.
type BoltCacheStorage struct {
	db *bolt.DB
}

// cachedResponse is the persisted form of a Response
type cachedResponse struct {
	Status int                 `json:"status"`
	Header map[string][]string `json:"header,omitempty"`
	Body   []byte              `json:"body"`
}

// OpenBoltCacheStorage opens (or creates) the response cache database
// under dir.
func OpenBoltCacheStorage(dir string) (*BoltCacheStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "offline.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open offline cache db: %w", err)
	}
	return &BoltCacheStorage{db: db}, nil
}

func (s *BoltCacheStorage) Close() error {
	return s.db.Close()
}

// Open returns the named cache, creating its bucket if needed
func (s *BoltCacheStorage) Open(name string) (Cache, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &boltCache{db: s.db, bucket: []byte(name)}, nil
}

// Names lists every cache generation present
func (s *BoltCacheStorage) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// Delete drops an entire cache generation
func (s *BoltCacheStorage) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(name))
	})
}

type boltCache struct {
	db     *bolt.DB
	bucket []byte
}

func (c *boltCache) Match(key string) (*Response, bool) {
	var data []byte
	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return nil, false
	}

	var rec cachedResponse
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &Response{Status: rec.Status, Header: http.Header(rec.Header), Body: rec.Body}, true
}

func (c *boltCache) Put(key string, resp *Response) error {
	data, err := json.Marshal(cachedResponse{Status: resp.Status, Header: resp.Header, Body: resp.Body})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("cache %q was deleted", string(c.bucket))
		}
		return b.Put([]byte(key), data)
	})
}

func (c *boltCache) Delete(key string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
