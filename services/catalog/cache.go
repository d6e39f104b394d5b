package catalog

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var cacheBucket = []byte("responses")

// responseCache stores upstream API responses in a bbolt file with a TTL.
// Entries are envelope-wrapped JSON; expired entries are skipped on read
// and physically removed by Prune.
type responseCache struct {
	db  *bolt.DB
	ttl time.Duration
}

type cacheEnvelope struct {
	StoredAt time.Time       `json:"storedAt"`
	Payload  json.RawMessage `json:"payload"`
}

func newResponseCache(dir string, ttlHours int) (*responseCache, error) {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "catalog.db"), 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &responseCache{db: db, ttl: time.Duration(ttlHours) * time.Hour}, nil
}

func (c *responseCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// cacheKey derives a stable key from request parts.
func cacheKey(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// get decodes a fresh cached value into v and reports whether it was found.
func (c *responseCache) get(key string, v any) bool {
	if c == nil {
		return false
	}
	var env cacheEnvelope
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(cacheBucket).Get([]byte(key))
		if raw == nil {
			return bolt.ErrBucketNotFound
		}
		return json.Unmarshal(raw, &env)
	})
	if err != nil {
		return false
	}
	if time.Since(env.StoredAt) > c.ttl {
		return false
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return false
	}
	return true
}

// set stores v under key. Failures are logged, never fatal: the cache is
// an optimization.
func (c *responseCache) set(key string, v any) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("[catalog] cache marshal failed: %v", err)
		return
	}
	raw, err := json.Marshal(cacheEnvelope{StoredAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		log.Printf("[catalog] cache marshal failed: %v", err)
		return
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).Put([]byte(key), raw)
	}); err != nil {
		log.Printf("[catalog] cache write failed: %v", err)
	}
}

// Clear drops every entry regardless of age.
func (c *responseCache) Clear() error {
	if c == nil {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(cacheBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(cacheBucket)
		return err
	})
}

// Prune removes expired entries and returns how many were deleted.
func (c *responseCache) Prune() (int, error) {
	if c == nil {
		return 0, nil
	}
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		cur := b.Cursor()
		var stale [][]byte
		for k, raw := cur.First(); k != nil; k, raw = cur.Next() {
			var env cacheEnvelope
			if err := json.Unmarshal(raw, &env); err != nil || time.Since(env.StoredAt) > c.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
