package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketGuest   = []byte("guest")
	bucketFlags   = []byte("flags")
	bucketSocial  = []byte("social")
	bucketCatalog = []byte("catalog")
)

// Fixed keys, one per guest data domain. Each key's value is a JSON
// document matching that domain's schema.
const (
	KeyFavorites   = "favorites"
	KeyHistory     = "history"
	KeyProfile     = "profile"
	KeyPreferences = "preferences"
	KeyDrafts      = "drafts"
	KeyEngagement  = "engagement"

	KeyOnboarded         = "onboarded"
	KeyReminderDismissed = "reminder_dismissed_at"
	KeyInstallDismissed  = "install_prompt_dismissed_at"
)

// Store is the synchronous guest-local persistent store: BoltDB with an
// in-memory mirror so reads within a session never miss, and a memory-only
// mode (no directory configured) where nothing survives the process.
//
// Reads treat unparseable values as absent. Writes update the mirror before
// the disk write, so a failed disk write still leaves the session coherent.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger

	mu     sync.RWMutex
	mirror map[string][]byte
}

// Open opens (or creates) the store under dir. An empty dir selects
// memory-only mode.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return &Store{logger: logger, mirror: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "katha.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketGuest, bucketFlags, bucketSocial, bucketCatalog} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger, mirror: make(map[string][]byte)}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *Store) get(bucket []byte, key string, dest interface{}) bool {
	mirrorKey := string(bucket) + ":" + key

	// Check memory mirror first
	s.mu.RLock()
	if data, ok := s.mirror[mirrorKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
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
		return false
	}

	// Promote to the mirror
	s.mu.Lock()
	s.mirror[mirrorKey] = data
	s.mu.Unlock()

	if err := json.Unmarshal(data, dest); err != nil {
		// Corrupt value: treat as absent. The next write overwrites it.
		s.logger.Warn("discarding corrupt store value", "bucket", string(bucket), "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.setRaw(bucket, key, data)
}

func (s *Store) setRaw(bucket []byte, key string, data []byte) error {
	mirrorKey := string(bucket) + ":" + key

	// Mirror first: a failed disk write must not lose the session's state
	s.mu.Lock()
	s.mirror[mirrorKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.Put([]byte(key), data)
	})
	if err != nil {
		s.logger.Warn("store write failed, keeping in-memory copy", "bucket", string(bucket), "key", key, "error", err)
	}
	return err
}

func (s *Store) delete(bucket []byte, key string) {
	mirrorKey := string(bucket) + ":" + key

	s.mu.Lock()
	delete(s.mirror, mirrorKey)
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b != nil {
			b.Delete([]byte(key))
		}
		return nil
	})
}

func (s *Store) deletePrefix(bucket []byte, prefix string) {
	s.mu.Lock()
	mirrorPrefix := string(bucket) + ":" + prefix
	for k := range s.mirror {
		if strings.HasPrefix(k, mirrorPrefix) {
			delete(s.mirror, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// === Guest domain records ===

// GetGuest reads a guest domain record into dest. A missing or corrupt
// value returns false and leaves dest untouched; callers fall back to the
// domain default.
func (s *Store) GetGuest(key string, dest interface{}) bool {
	return s.get(bucketGuest, key, dest)
}

// PutGuest persists a guest domain record. The in-memory mirror always
// updates; the disk write is best-effort and its error is returned for
// callers that care.
func (s *Store) PutGuest(key string, value interface{}) error {
	return s.set(bucketGuest, key, value)
}

// DeleteGuest removes a guest domain record
func (s *Store) DeleteGuest(key string) {
	s.delete(bucketGuest, key)
}

// === Flags ===

func (s *Store) GetFlag(key string) (int64, bool) {
	var v int64
	ok := s.get(bucketFlags, key, &v)
	return v, ok
}

func (s *Store) SetFlag(key string, value int64) error {
	return s.set(bucketFlags, key, value)
}

// === Per-story social overlay (social:{storyID}) ===

func (s *Store) GetSocial(storyID string, dest interface{}) bool {
	return s.get(bucketSocial, storyID, dest)
}

func (s *Store) PutSocial(storyID string, value interface{}) error {
	return s.set(bucketSocial, storyID, value)
}

// === Catalog snapshots (keyed by language/audience) ===

func (s *Store) GetCatalog(key string, dest interface{}) bool {
	return s.get(bucketCatalog, key, dest)
}

func (s *Store) PutCatalog(key string, value interface{}) error {
	return s.set(bucketCatalog, key, value)
}

// InvalidateCatalog wipes all catalog snapshots with the given prefix
func (s *Store) InvalidateCatalog(prefix string) {
	s.deletePrefix(bucketCatalog, prefix)
}
