package embed

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var vectorsBucket = []byte("vectors")

// DiskCache persists document embeddings in a bbolt file keyed by a
// model-qualified content hash.
type DiskCache struct {
	db *bbolt.DB
}

// OpenDiskCache opens or creates the cache at path. bbolt allows a single
// writer process; if another process holds the file, opening fails after
// a short wait.
func OpenDiskCache(path string) (*DiskCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(vectorsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init embedding cache: %w", err)
	}
	return &DiskCache{db: db}, nil
}

// GetMany returns the cached vector for each key, nil where missing.
func (c *DiskCache) GetMany(keys []string) [][]float32 {
	out := make([][]float32, len(keys))
	_ = c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vectorsBucket)
		for i, k := range keys {
			if v := b.Get([]byte(k)); v != nil {
				out[i] = unpack(v)
			}
		}
		return nil
	})
	return out
}

// PutMany stores vectors under keys in one transaction.
func (c *DiskCache) PutMany(keys []string, vecs [][]float32) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vectorsBucket)
		for i, k := range keys {
			if err := b.Put([]byte(k), pack(vecs[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// Len returns the number of cached vectors.
func (c *DiskCache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(vectorsBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the cache file.
func (c *DiskCache) Close() error {
	return c.db.Close()
}

func pack(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// unpack copies out of bbolt's mmap, which is only valid inside the
// transaction.
func unpack(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
