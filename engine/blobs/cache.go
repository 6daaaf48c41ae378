// Package blobs caches precompiled shader binaries by path and invalidates
// entries when the file changes on disk, so a re-load after a recompile picks
// up fresh bytes without restarting the runtime.
package blobs

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/spaghettifunk/prism/engine/core"
)

type entry struct {
	ID         uuid.UUID
	Data       []byte
	LastLoaded time.Time
}

type Cache struct {
	entries map[string]entry

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewCache() (*Cache, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &Cache{
		entries:  make(map[string]entry),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

// Load returns the blob bytes for path, reading and caching them on first
// use. Callers must not mutate the returned slice.
func (c *Cache) Load(path string) ([]byte, error) {
	c.mutex.RLock()
	e, ok := c.entries[path]
	c.mutex.RUnlock()
	if ok {
		return e.Data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.isClosed {
		return nil, errors.New("blob cache already closed")
	}
	c.entries[path] = entry{ID: uuid.New(), Data: data, LastLoaded: time.Now()}
	if err := c.fsnotify.Add(path); err != nil {
		// Watch failures only cost hot invalidation; the load still counts.
		core.LogWarn("blob watch failed for '%s': %v", path, err)
	}
	return data, nil
}

func (c *Cache) watch() {
	for {
		select {
		case <-c.done:
			return
		case e, ok := <-c.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.invalidate(e.Name)
			}
		case err, ok := <-c.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogWarn("blob watcher error: %v", err)
		}
	}
}

func (c *Cache) invalidate(path string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.entries[path]; ok {
		core.LogDebug("blob '%s' changed on disk; cache entry dropped", path)
		delete(c.entries, path)
	}
}

// Invalidate drops a cached entry explicitly.
func (c *Cache) Invalidate(path string) {
	c.invalidate(path)
}

// Len reports the number of cached blobs.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

func (c *Cache) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.isClosed {
		return
	}
	c.isClosed = true
	close(c.done)
	c.fsnotify.Close()
	c.entries = nil
}
