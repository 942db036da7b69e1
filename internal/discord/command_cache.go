package discord

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/keshon/datastore"
)

// commandCache remembers the hash of the last published command set per scope.
// A nil cache remembers nothing.
type commandCache struct {
	ds     *datastore.DataStore
	cancel context.CancelFunc
}

func openCommandCache(ctx context.Context, path string) (*commandCache, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open command cache %s: %w", path, err)
	}
	// the store's autosave loop runs until this context ends
	ctx, cancel := context.WithCancel(ctx)
	ds, err := datastore.New(ctx, path)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open command cache %s: %w", path, err)
	}
	return &commandCache{ds: ds, cancel: cancel}, nil
}

func (c *commandCache) hash(scope string) string {
	if c == nil {
		return ""
	}
	var h string
	ok, err := c.ds.Get(scope, &h)
	if err != nil {
		log.Printf("[WARN] [%s] Unreadable command hash, republishing: %v", scope, err)
		return ""
	}
	if !ok {
		return ""
	}
	return h
}

func (c *commandCache) store(scope, hash string) {
	if c == nil {
		return
	}
	if err := c.ds.Set(scope, hash); err != nil {
		log.Printf("[WARN] [%s] Failed to remember command hash: %v", scope, err)
	}
}

func (c *commandCache) Close() error {
	if c == nil {
		return nil
	}
	c.cancel()
	return c.ds.Close()
}
