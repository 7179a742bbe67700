// Package blobcache is an internal content-addressed store that lets
// the updater skip re-downloading a file one patch already fetched
// under a different name, as long as its CRC32 (the same integrity
// value the files.js protocol already trusts) matches.
package blobcache

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"
	"github.com/zeebo/blake3"

	"github.com/SakuraUO/thcrap/internal/corerr"
)

// Cache stores blobs on disk under dir, content-addressed by their
// BLAKE3 digest, with an in-memory CRC32 -> digest index for fast
// dedup lookups against the files.js CRC values.
type Cache struct {
	dir string

	mu    sync.Mutex
	byCRC map[uint32]string // crc32 -> blake3 hex digest
}

// Open returns a Cache rooted at dir. dir is created lazily on first
// Put; Open itself performs no I/O.
func Open(dir string) *Cache {
	return &Cache{dir: dir, byCRC: make(map[uint32]string)}
}

// Lookup returns the cached bytes for a previously-seen crc32 value,
// if any patch in this process has already fetched content with that
// checksum.
func (c *Cache) Lookup(crc32Val uint32) ([]byte, bool) {
	c.mu.Lock()
	digest, ok := c.byCRC[crc32Val]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(c.blobPath(digest))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data under its BLAKE3 digest and indexes it by crc32Val
// for future Lookup calls, returning the digest.
func (c *Cache) Put(crc32Val uint32, data []byte) (string, error) {
	digest := digestHex(data)
	path := c.blobPath(digest)

	if _, err := os.Stat(path); err != nil {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("blobcache: mkdir: %w: %v", corerr.ErrIoError, err)
		}
		if err := renameio.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("blobcache: store %s: %w: %v", digest, corerr.ErrIoError, err)
		}
	}

	c.mu.Lock()
	c.byCRC[crc32Val] = digest
	c.mu.Unlock()
	return digest, nil
}

// blobPath shards by the digest's first byte to avoid one huge
// directory once a long-running process accumulates many blobs.
func (c *Cache) blobPath(digest string) string {
	return filepath.Join(c.dir, digest[:2], digest)
}

func digestHex(data []byte) string {
	h := blake3.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
