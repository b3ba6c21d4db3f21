// pkg/status/hashcache.go - file digests cached by path, mtime and size.

package status

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/aviutl2catalog/catalog/pkg/utils"
)

// HashCacheFile is the cache database inside the config dir.
const HashCacheFile = "hash-cache.db"

var bucketHashes = []byte("xxh3_128")

type cachedHash struct {
	Hash    string `json:"xxh3_128"`
	MtimeMs int64  `json:"mtimeMs"`
	Size    int64  `json:"size"`
}

// HashCache remembers XXH3-128 digests. An entry is reused only while the
// file's modification time and size are unchanged.
type HashCache struct {
	db *bbolt.DB
}

// OpenHashCache opens or creates the cache database at path.
func OpenHashCache(path string) (*HashCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open hash cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHashes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize hash cache: %w", err)
	}
	return &HashCache{db: db}, nil
}

// Close closes the database.
func (c *HashCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Hash returns the digest of path, or "" when the file does not exist.
func (c *HashCache) Hash(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return "", nil
	}
	if c == nil || c.db == nil {
		return utils.HashFileXXH3(path)
	}
	mtime := fi.ModTime().UnixMilli()
	size := fi.Size()

	var hit string
	_ = c.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketHashes).Get([]byte(path))
		if raw == nil {
			return nil
		}
		var e cachedHash
		if json.Unmarshal(raw, &e) == nil && e.Hash != "" && e.MtimeMs == mtime && e.Size == size {
			hit = e.Hash
		}
		return nil
	})
	if hit != "" {
		return hit, nil
	}

	sum, err := utils.HashFileXXH3(path)
	if err != nil {
		return "", err
	}
	data, _ := json.Marshal(cachedHash{Hash: sum, MtimeMs: mtime, Size: size})
	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHashes).Put([]byte(path), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save hash of %s: %w", path, err)
	}
	return sum, nil
}
