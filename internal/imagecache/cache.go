// Package imagecache keeps linked module images on disk, keyed by the
// manifest digest, so an unchanged project relinks without emitting.
package imagecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"aotrt/internal/project"
	"aotrt/internal/typedesc"
)

// SchemaVersion changes whenever the Payload layout or the image format
// changes. Payloads of another version are treated as misses.
const SchemaVersion uint16 = 1

// Payload is one cached link.
type Payload struct {
	Schema uint16
	Target string
	Images []typedesc.ModuleImage
	// Services is the encoded rtservice.Table.
	Services []byte
}

// Cache stores payloads under a directory. Safe for concurrent use; a nil
// *Cache is a cache that never hits.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open returns the cache at $XDG_CACHE_HOME/app (or ~/.cache/app).
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDir(filepath.Join(base, app))
}

// OpenDir returns a cache rooted at dir, creating it if needed.
func OpenDir(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key project.Digest) string {
	return filepath.Join(c.dir, "images", key.String()+".mp")
}

// Put writes payload under key. The file is replaced atomically.
func (c *Cache) Put(key project.Digest, payload *Payload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		// After a successful rename the temp name is gone.
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the payload stored under key into out. A missing entry or a
// payload of another schema reports false without error.
func (c *Cache) Get(key project.Digest, out *Payload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var p Payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	if p.Schema != SchemaVersion {
		return false, nil
	}
	*out = p
	return true, nil
}

// DropAll removes every cached payload.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}
