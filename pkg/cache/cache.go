package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/drallgood/gqlstore/internal/logger"
	"github.com/drallgood/gqlstore/pkg/store"
)

// ErrCacheMiss is returned by Read when nothing is stored under a key
var ErrCacheMiss = errors.New("cache miss")

// DefaultCleanupInterval is how often expired entries are purged when a TTL is set
const DefaultCleanupInterval = 10 * time.Minute

// Key identifies a cached result: the operation text plus its variables
type Key string

// KeyFor builds the cache key for a query and its variables. Whitespace in
// the query is collapsed and variables are encoded with sorted keys, so
// equivalent requests share an entry.
func KeyFor(query string, variables map[string]interface{}) Key {
	q := strings.Join(strings.Fields(query), " ")
	if len(variables) == 0 {
		return Key(q)
	}
	vars, err := json.Marshal(variables)
	if err != nil {
		vars = []byte(fmt.Sprintf("%v", variables))
	}
	return Key(q + "|" + string(vars))
}

// Cache stores operation results and lets callers watch individual entries
type Cache interface {
	// Read returns the entry for key. With optimistic set, pending optimistic
	// writes take precedence over confirmed data.
	Read(key Key, optimistic bool) (json.RawMessage, error)
	// Write stores confirmed data for key and notifies watchers
	Write(key Key, data json.RawMessage)
	// Evict removes the confirmed entry for key and notifies watchers
	Evict(key Key)
	// Reset drops all data, optimistic layers included, and notifies every watcher
	Reset()
	// Watch calls fn with the optimistic view of key after every change.
	// fn receives nil once nothing is left under key.
	Watch(key Key, fn func(json.RawMessage)) (cancel func())
	// RecordOptimistic layers data for key under id until RemoveOptimistic(id)
	RecordOptimistic(id string, key Key, data json.RawMessage)
	// RemoveOptimistic drops every layer recorded under id
	RemoveOptimistic(id string)
}

type optimisticLayer struct {
	id   string
	key  Key
	data json.RawMessage
}

// InMemoryCache is a Cache kept in process memory
type InMemoryCache struct {
	items *gocache.Cache
	ttl   time.Duration
	log   *logger.Logger

	mu       sync.Mutex
	layers   []optimisticLayer
	watchers map[Key]*store.Feed[json.RawMessage]
}

// Option configures an InMemoryCache
type Option func(*InMemoryCache)

// WithTTL expires confirmed entries ttl after they were written
func WithTTL(ttl time.Duration) Option {
	return func(c *InMemoryCache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger used for cache debug output
func WithLogger(log *logger.Logger) Option {
	return func(c *InMemoryCache) {
		c.log = log
	}
}

// NewInMemoryCache creates an empty cache
func NewInMemoryCache(opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		ttl:      gocache.NoExpiration,
		watchers: make(map[Key]*store.Feed[json.RawMessage]),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl <= 0 {
		c.ttl = gocache.NoExpiration
	}
	cleanup := time.Duration(0)
	if c.ttl != gocache.NoExpiration {
		cleanup = DefaultCleanupInterval
	}
	c.items = gocache.New(c.ttl, cleanup)
	c.log = logger.OrGlobal(c.log).Component("cache")
	return c
}

// Read implements Cache
func (c *InMemoryCache) Read(key Key, optimistic bool) (json.RawMessage, error) {
	if optimistic {
		c.mu.Lock()
		data, ok := c.topLayerLocked(key)
		c.mu.Unlock()
		if ok {
			return data, nil
		}
	}

	v, found := c.items.Get(string(key))
	if !found {
		c.log.Debug("Cache miss", map[string]interface{}{"key": string(key)})
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	data, ok := v.(json.RawMessage)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T", ErrCacheMiss, key, v)
	}
	return data, nil
}

// Write implements Cache
func (c *InMemoryCache) Write(key Key, data json.RawMessage) {
	c.items.Set(string(key), cloneRaw(data), gocache.DefaultExpiration)
	c.log.Debug("Item added to cache", map[string]interface{}{
		"key":        string(key),
		"cache_size": c.items.ItemCount(),
	})
	c.notify(key)
}

// Evict implements Cache
func (c *InMemoryCache) Evict(key Key) {
	c.items.Delete(string(key))
	c.log.Debug("Item removed from cache", map[string]interface{}{
		"key":             string(key),
		"remaining_items": c.items.ItemCount(),
	})
	c.notifyRemoved(key)
}

// Reset implements Cache
func (c *InMemoryCache) Reset() {
	c.items.Flush()
	c.mu.Lock()
	c.layers = nil
	watched := make([]Key, 0, len(c.watchers))
	for key := range c.watchers {
		watched = append(watched, key)
	}
	c.mu.Unlock()
	c.log.Debug("Cache cleared", map[string]interface{}{"watched_keys": len(watched)})

	for _, key := range watched {
		c.notifyRemoved(key)
	}
}

// Watch implements Cache
func (c *InMemoryCache) Watch(key Key, fn func(json.RawMessage)) func() {
	c.mu.Lock()
	feed, ok := c.watchers[key]
	if !ok {
		feed = store.NewFeed[json.RawMessage]()
		c.watchers[key] = feed
	}
	unsubscribe := feed.Subscribe(fn)
	c.mu.Unlock()

	return func() {
		unsubscribe()
		c.mu.Lock()
		defer c.mu.Unlock()
		if feed.Subscribers() == 0 && c.watchers[key] == feed {
			delete(c.watchers, key)
			feed.Close()
		}
	}
}

// RecordOptimistic implements Cache
func (c *InMemoryCache) RecordOptimistic(id string, key Key, data json.RawMessage) {
	c.mu.Lock()
	c.layers = append(c.layers, optimisticLayer{id: id, key: key, data: cloneRaw(data)})
	c.mu.Unlock()
	c.notify(key)
}

// RemoveOptimistic implements Cache
func (c *InMemoryCache) RemoveOptimistic(id string) {
	c.mu.Lock()
	var touched []Key
	kept := c.layers[:0]
	for _, l := range c.layers {
		if l.id == id {
			touched = append(touched, l.key)
			continue
		}
		kept = append(kept, l)
	}
	c.layers = kept
	c.mu.Unlock()

	for _, key := range touched {
		c.notify(key)
	}
}

// Extract returns a snapshot of all confirmed entries
func (c *InMemoryCache) Extract() map[Key]json.RawMessage {
	items := c.items.Items()
	out := make(map[Key]json.RawMessage, len(items))
	for k, item := range items {
		if data, ok := item.Object.(json.RawMessage); ok {
			out[Key(k)] = cloneRaw(data)
		}
	}
	return out
}

// Restore writes every entry of snapshot into the cache
func (c *InMemoryCache) Restore(snapshot map[Key]json.RawMessage) {
	for k, data := range snapshot {
		c.Write(k, data)
	}
}

// Len returns the number of confirmed entries
func (c *InMemoryCache) Len() int {
	return c.items.ItemCount()
}

// topLayerLocked returns the most recent optimistic data for key
func (c *InMemoryCache) topLayerLocked(key Key) (json.RawMessage, bool) {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].key == key {
			return c.layers[i].data, true
		}
	}
	return nil, false
}

// notify sends the optimistic view of key to its watchers, if it has one
func (c *InMemoryCache) notify(key Key) {
	c.mu.Lock()
	feed := c.watchers[key]
	c.mu.Unlock()
	if feed == nil {
		return
	}

	data, err := c.Read(key, true)
	if err != nil {
		return
	}
	feed.Send(data)
}

// notifyRemoved tells the watchers of key that its confirmed entry is gone.
// They get the remaining optimistic data, or nil.
func (c *InMemoryCache) notifyRemoved(key Key) {
	c.mu.Lock()
	feed := c.watchers[key]
	data, _ := c.topLayerLocked(key)
	c.mu.Unlock()
	if feed == nil {
		return
	}
	feed.Send(data)
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
