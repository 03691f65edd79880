/*
Copyright (C) 2026 the vecfilter authors.
This file is part of vecfilter.

vecfilter is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

vecfilter is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with vecfilter.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package resultcache implements §4.6's content-addressed result cache: a
// map from (fingerprint, target layer) to the fid-set a backend produced
// for that pair, LRU-bounded and invalidated on layer-edit events.
//
// The single-flight stage is the teacher's own
// github.com/ctessum/requestcache.Deduplicate(), used exactly as
// emissions/slca wires it in front of a memory cache. Eviction, however,
// is NOT requestcache.Memory() — that stage hides its LRU inside a
// closure with no Remove/iteration hook, which leaves no way to honor
// the "invalidated on layer edit" rule. Cache instead drives
// github.com/golang/groupcache/lru directly (the same package
// requestcache.Memory() uses internally) so it can evict a single
// layer's entries and release their owned artifacts via OnEvicted.
package resultcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/ctessum/requestcache"
	"github.com/golang/groupcache/lru"

	"github.com/spatialmodel/vecfilter"
)

// Key identifies one cacheable match result: the source fingerprint and
// the target layer it was computed against. Per §4.6, the fingerprint
// deliberately excludes the requesting layer's PreviousFilterState, so a
// Key's entry is the raw predicate match, not combined with any prior
// selection — the orchestrator performs that combine after the Get.
type Key struct {
	Fingerprint vecfilter.FilterFingerprint
	Target      vecfilter.LayerRef
}

func (k Key) String() string {
	return fmt.Sprintf("%s\x00%s", k.Fingerprint, k.Target)
}

// Entry is the cached payload: the backend-native fid set (when the
// backend produced one) and the FilterState describing it.
type Entry struct {
	FIDs  *vecfilter.FIDSet
	State vecfilter.FilterState
}

// Producer computes an Entry on a cache miss. It is invoked at most once
// per distinct in-flight Key, even if Get is called concurrently with
// the same Key from multiple tasks (single-flight via Deduplicate()).
type Producer func(ctx context.Context) (Entry, error)

// OnEvict is called with the entry evicted from the cache, either by LRU
// pressure or by an explicit InvalidateLayer/Clear, so the orchestrator
// can release any backend artifact the entry pinned (e.g. drop a
// materialized view that only this cache entry referenced).
type OnEvict func(key Key, entry Entry)

// Cache is the orchestrator's single result cache for the lifetime of
// one session; it is destroyed (via Clear) on plugin shutdown per §4.6.
type Cache struct {
	mu        sync.Mutex
	lru       *lru.Cache
	byTarget  map[vecfilter.LayerRef]map[string]Key
	dedup     *requestcache.Cache
	onEvict   OnEvict
	capacity  int
}

// New builds a Cache bounded to capacity entries (config key
// cache.capacity, default 128).
func New(capacity int, onEvict OnEvict) *Cache {
	c := &Cache{
		lru:      lru.New(capacity),
		byTarget: make(map[vecfilter.LayerRef]map[string]Key),
		onEvict:  onEvict,
		capacity: capacity,
	}
	c.lru.OnEvicted = func(key lru.Key, value interface{}) {
		c.forget(key.(string))
		if c.onEvict != nil {
			entry, k := value.(cachedEntry).entry, value.(cachedEntry).key
			c.onEvict(k, entry)
		}
	}
	// numProcessors=1: the orchestrator is single-threaded per §5 ("no
	// core data structure is accessed from more than one worker without
	// going through the orchestrator"), so there is never more than one
	// Producer genuinely running at a time; Deduplicate() exists here to
	// collapse concurrent requests for the *same* key, not to parallelize
	// distinct ones.
	c.dedup = requestcache.NewCache(c.process, 1, requestcache.Deduplicate())
	return c
}

type cachedEntry struct {
	key   Key
	entry Entry
}

type request struct {
	key     Key
	produce Producer
}

func (c *Cache) process(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(request)
	entry, err := req.produce(ctx)
	if err != nil {
		return nil, err
	}
	return cachedEntry{key: req.key, entry: entry}, nil
}

// Get resolves key from the cache, invoking produce on a miss. A second
// concurrent Get for the same key while produce is still running joins
// the first call's result instead of invoking produce again.
func (c *Cache) Get(ctx context.Context, key Key, produce Producer) (Entry, bool, error) {
	k := key.String()

	c.mu.Lock()
	if v, ok := c.lru.Get(lru.Key(k)); ok {
		c.mu.Unlock()
		return v.(cachedEntry).entry, true, nil
	}
	c.mu.Unlock()

	r := c.dedup.NewRequest(ctx, request{key: key, produce: produce}, k)
	out, err := r.Result()
	if err != nil {
		return Entry{}, false, err
	}
	ce := out.(cachedEntry)

	c.mu.Lock()
	c.lru.Add(lru.Key(k), ce)
	if c.byTarget[key.Target] == nil {
		c.byTarget[key.Target] = make(map[string]Key)
	}
	c.byTarget[key.Target][k] = key
	c.mu.Unlock()

	return ce.entry, false, nil
}

// forget drops k's bookkeeping from byTarget; called from OnEvicted,
// which already holds no lock of its own (groupcache/lru calls it
// synchronously from within Add/Remove/RemoveOldest), so it must not
// re-acquire c.mu itself here — callers already hold it, except the
// OnEvicted closure above which is invoked while lru's own internal call
// is on the stack beneath a c.mu holder (Get's Add, or InvalidateLayer's
// Remove), so it is always entered with c.mu held.
func (c *Cache) forget(k string) {
	for target, keys := range c.byTarget {
		if _, ok := keys[k]; ok {
			delete(keys, k)
			if len(keys) == 0 {
				delete(c.byTarget, target)
			}
			return
		}
	}
}

// InvalidateLayer evicts every cached entry keyed to target, per §4.6's
// "invalidated when a layer reports an edit event" rule. Entries whose
// Fingerprint was computed *from* ref as a source are not evicted: the
// cache keeps no reverse index from source layers to entries.
func (c *Cache) InvalidateLayer(ref vecfilter.LayerRef) {
	c.mu.Lock()
	keys := c.byTarget[ref]
	ks := make([]string, 0, len(keys))
	for k := range keys {
		ks = append(ks, k)
	}
	c.mu.Unlock()

	for _, k := range ks {
		c.mu.Lock()
		c.lru.Remove(lru.Key(k))
		c.mu.Unlock()
	}
}

// Clear destroys every entry, invoking onEvict for each so owned
// artifacts are released. Called on plugin shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := c.lru.Len()
	c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.mu.Lock()
		if c.lru.Len() == 0 {
			c.mu.Unlock()
			break
		}
		c.lru.RemoveOldest()
		c.mu.Unlock()
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
