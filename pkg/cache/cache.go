// Package cache keeps the last inventory built for a config file on disk.
// There is one slot per config file; nothing is ever evicted.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmcdonald3/smd-inventory/pkg/inventory"
)

// entry is the on-disk blob.
type entry struct {
	Created   time.Time            `json:"created"`
	Inventory *inventory.Inventory `json:"inventory"`
}

// Cache stores inventories under Dir. A zero TTL means entries never expire.
type Cache struct {
	Dir string
	TTL time.Duration

	now func() time.Time
}

// New returns a cache rooted at dir whose entries expire after ttl.
func New(dir string, ttl time.Duration) *Cache {
	return &Cache{Dir: dir, TTL: ttl, now: time.Now}
}

// Key derives the cache key from the identity of a config file.
func Key(configPath string) string {
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	sum := sha256.Sum256([]byte(configPath))
	return "smd_inventory_" + hex.EncodeToString(sum[:8])
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.Dir, key+".json")
}

// Load returns the cached inventory for key. A missing, expired or
// unreadable entry is a miss (nil, false).
func (c *Cache) Load(key string) (*inventory.Inventory, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var e entry
	if err := dec.Decode(&e); err != nil || e.Inventory == nil {
		return nil, false
	}
	if c.TTL > 0 && c.now().Sub(e.Created) > c.TTL {
		return nil, false
	}

	inv := e.Inventory
	if inv.Components == nil {
		inv.Components = map[string]inventory.Record{}
	}
	if inv.Partitions == nil {
		inv.Partitions = inventory.Set{}
	}
	if inv.Groups == nil {
		inv.Groups = inventory.Set{}
	}
	return inv, true
}

// Store writes inv under key, replacing any previous entry.
func (c *Cache) Store(key string, inv *inventory.Inventory) error {
	if inv == nil {
		return errors.New("nothing to cache")
	}
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(entry{Created: c.now(), Inventory: inv})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.Dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return os.Rename(tmp.Name(), c.path(key))
}
