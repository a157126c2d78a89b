/*
Copyright (C) 2026  LogUnit Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package logunit

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader loads the durable value for a, or (LogData{}, false, nil) if
// nothing is stored there.
type Loader func(a LogAddress) (LogData, bool, error)

// Writer durably stores v at a. Returning ErrOverwrite means a is
// already durable with a different value; the cache must not retain v
// (spec.md §4.D "Writer").
type Writer func(a LogAddress, v LogData) error

type cacheEntry struct {
	value    LogData
	weight   int64
	lastUsed atomic.Int64 // UnixNano, lock-free for the hot read path
}

// WriteThroughCache is the spec.md §4.D bounded, size-aware cache
// fronting the segment logs: a plain map guarded by a mutex, per-entry
// atomic last-used timestamps, and synchronous weight-based eviction
// on insert. Unlike a plain LRU cache, eviction here must also run an
// explicit buffer release (RefBuf.Release) rather than rely on GC
// finalization (spec.md §9 "external-refcount buffers").
//
// Per-key serialization of the loader and writer callbacks (spec.md
// invariant I5) goes through keyLock for both paths. Concurrent Get
// calls racing a miss on the same key additionally collapse through a
// golang.org/x/sync/singleflight.Group so only one of them actually
// reaches the segment log.
type WriteThroughCache struct {
	maxWeight     atomic.Int64
	currentWeight atomic.Int64

	mu      sync.RWMutex
	entries map[LogAddress]*cacheEntry

	keys *keyLock
	sf   singleflight.Group

	loader Loader
	writer Writer
}

func NewWriteThroughCache(maxWeight int64, loader Loader, writer Writer) *WriteThroughCache {
	c := &WriteThroughCache{
		entries: make(map[LogAddress]*cacheEntry),
		keys:    newKeyLock(),
		loader:  loader,
		writer:  writer,
	}
	c.maxWeight.Store(maxWeight)
	return c
}

// Put is the spec.md §4.D "put": it serializes with any other Put or
// Get-on-miss for the same address, invokes Writer, and only retains
// the new value if Writer succeeds.
func (c *WriteThroughCache) Put(a LogAddress, v LogData) error {
	release := c.keys.Lock(a)
	defer release()

	if err := c.writer(a, v); err != nil {
		return err
	}
	c.insert(a, v)
	return nil
}

// Get is spec.md §4.D "get": cache hit returns immediately; a miss
// loads through Loader under the per-key critical section.
func (c *WriteThroughCache) Get(a LogAddress) (LogData, error) {
	c.mu.RLock()
	e, ok := c.entries[a]
	c.mu.RUnlock()
	if ok {
		e.lastUsed.Store(time.Now().UnixNano())
		return e.value, nil
	}

	v, err, _ := c.sf.Do(a.String(), func() (any, error) {
		release := c.keys.Lock(a)
		defer release()

		// A concurrent Put for this exact address may have completed
		// while we waited for the key lock (singleflight only
		// collapses Get callers, not Put callers).
		c.mu.RLock()
		if e, ok := c.entries[a]; ok {
			c.mu.RUnlock()
			return e.value, nil
		}
		c.mu.RUnlock()

		data, found, err := c.loader(a)
		if err != nil {
			return LogData{}, err
		}
		if !found {
			return EmptyData(), nil
		}
		c.insert(a, data)
		return data, nil
	})
	if err != nil {
		return LogData{}, err
	}
	return v.(LogData), nil
}

// insert stores v for a and runs synchronous eviction if the cache is
// now over budget (spec.md property P7: bounded "after any sequence
// of puts").
func (c *WriteThroughCache) insert(a LogAddress, v LogData) {
	entry := &cacheEntry{value: v, weight: v.Weight()}
	entry.lastUsed.Store(time.Now().UnixNano())

	c.mu.Lock()
	old, hadOld := c.entries[a]
	c.entries[a] = entry
	c.mu.Unlock()

	delta := entry.weight
	if hadOld {
		delta -= old.weight
	}
	newTotal := c.currentWeight.Add(delta)

	if hadOld {
		releaseBuf(old.value)
	}
	if newTotal > c.maxWeight.Load() {
		c.evict()
	}
}

// evict runs size-aware LRU: oldest-accessed entries go first, until
// the cache is back at or under budget, releasing each evicted entry's
// RefBuf reference as it goes.
func (c *WriteThroughCache) evict() {
	type victim struct {
		addr     LogAddress
		lastUsed int64
	}

	c.mu.RLock()
	victims := make([]victim, 0, len(c.entries))
	for a, e := range c.entries {
		victims = append(victims, victim{addr: a, lastUsed: e.lastUsed.Load()})
	}
	c.mu.RUnlock()

	sort.Slice(victims, func(i, j int) bool { return victims[i].lastUsed < victims[j].lastUsed })

	for _, v := range victims {
		if c.currentWeight.Load() <= c.maxWeight.Load() {
			return
		}
		c.Invalidate(v.addr)
	}
}

// Invalidate drops a cache entry without touching anything on disk
// (spec.md §4.D). Releases the entry's buffer reference exactly once
// (invariant I6).
func (c *WriteThroughCache) Invalidate(a LogAddress) {
	c.mu.Lock()
	e, ok := c.entries[a]
	if ok {
		delete(c.entries, a)
	}
	c.mu.Unlock()
	if ok {
		c.currentWeight.Add(-e.weight)
		releaseBuf(e.value)
	}
}

// InvalidateAll drops every entry, releasing every buffer reference
// (used on Shutdown, per invariant I6).
func (c *WriteThroughCache) InvalidateAll() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[LogAddress]*cacheEntry)
	c.mu.Unlock()
	c.currentWeight.Store(0)
	for _, e := range old {
		releaseBuf(e.value)
	}
}

func (c *WriteThroughCache) ValuesSnapshot() []LogData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LogData, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.value)
	}
	return out
}

func (c *WriteThroughCache) KeysSnapshot() []LogAddress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LogAddress, 0, len(c.entries))
	for a := range c.entries {
		out = append(out, a)
	}
	return out
}

func (c *WriteThroughCache) CurrentWeight() int64 { return c.currentWeight.Load() }

// PeekIfPresent returns the cached value for a without ever consulting
// Loader. Used by GCEngine, which must only ever act on what is
// currently resident, not resurrect an entry by loading it.
func (c *WriteThroughCache) PeekIfPresent(a LogAddress) (LogData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[a]
	if !ok {
		return LogData{}, false
	}
	return e.value, true
}

// overwriteCached replaces the value of an already-cached entry in
// place (used by the COMMIT handler to set the commit-bit metadata).
// It does not invoke Writer and does not change the entry's weight —
// only Metadata is expected to differ. No-op if a is no longer
// cached (a concurrent evict/invalidate raced it; the caller's Get
// already observed the value it's trying to amend, which is an
// acceptable lost update for a best-effort metadata bit).
func (c *WriteThroughCache) overwriteCached(a LogAddress, v LogData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[a]; ok {
		e.value = v
	}
}

func releaseBuf(v LogData) {
	if v.Buf != nil {
		v.Buf.Release()
	}
}
