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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
)

// gcItem orders cache keys primarily by address, matching spec.md
// §4.E step 1 ("sort ascending by address"); the stream tiebreak only
// exists to give entries that share a numeric address (one in the
// global log, one in a stream log) a stable relative order.
type gcItem struct {
	addr LogAddress
}

func gcLess(a, b gcItem) bool {
	if a.addr.Address != b.addr.Address {
		return a.addr.Address < b.addr.Address
	}
	if a.addr.Global != b.addr.Global {
		return a.addr.Global
	}
	return a.addr.Stream.String() < b.addr.Stream.String()
}

// GCEngine is the spec.md §4.E background sweep. It holds no locks
// across iterations — each step uses the cache's own atomicity — so a
// pass tolerates concurrent writes; anything written after a pass's
// snapshot simply waits for the next one.
type GCEngine struct {
	cache   *WriteThroughCache
	trim    *TrimMap
	log     Logger
	archive ArchiveBackend  // nil disables cold archival tiering
	streams *streamRegistry // nil when the log unit has no per-stream logs yet reachable

	interval atomic.Int64 // nanoseconds, read/written atomically for SetInterval
	force    chan struct{}
	stop     chan struct{}
	stopped  atomic.Bool
	wg       sync.WaitGroup

	passes atomic.Uint64
	freed  atomic.Uint64
}

// NewGCEngine wires the background sweep. archive and streams are
// optional (SPEC_FULL.md "Supplemented features: cold archival
// tiering") — a nil archive skips archiveTrimmedSegments entirely.
func NewGCEngine(cache *WriteThroughCache, trim *TrimMap, interval time.Duration, log Logger, archive ArchiveBackend, streams *streamRegistry) *GCEngine {
	g := &GCEngine{
		cache:   cache,
		trim:    trim,
		log:     log,
		archive: archive,
		streams: streams,
		force:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	g.interval.Store(int64(interval))
	return g
}

// Start launches the dedicated GC worker (spec.md §5: "The GC loop is
// one dedicated worker"). Stop via Shutdown.
func (g *GCEngine) Start() {
	g.wg.Add(1)
	go g.run()
}

func (g *GCEngine) run() {
	defer g.wg.Done()
	for {
		timer := time.NewTimer(time.Duration(g.interval.Load()))
		select {
		case <-g.stop:
			timer.Stop()
			return
		case <-g.force:
			timer.Stop()
		case <-timer.C:
		}
		g.runPass()
	}
}

// runPass implements spec.md §4.E steps 1-4. Exceptions from any step
// are swallowed and logged; the loop continues (spec.md §7
// "Propagation policy: GC swallows and logs all exceptions per
// iteration").
func (g *GCEngine) runPass() {
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorf("gc: pass panicked: %v", r)
		}
	}()

	keys := g.cache.KeysSnapshot()
	tree := btree.NewG(32, gcLess)
	for _, a := range keys {
		tree.ReplaceOrInsert(gcItem{addr: a})
	}

	var freedThisPass uint64
	tree.Ascend(func(item gcItem) bool {
		value, ok := g.cache.PeekIfPresent(item.addr)
		if !ok {
			return true // gone since the snapshot; next pass will see whatever replaced it
		}
		if len(value.Streams) == 0 {
			// Global-only entries are never GC'd by design (spec.md §9 Q3).
			return true
		}
		if !g.trimmable(value, item.addr.Address) {
			return true
		}
		g.cache.Invalidate(item.addr)
		freedThisPass++
		return true
	})

	g.passes.Add(1)
	g.freed.Add(freedThisPass)

	if g.archive != nil {
		g.archiveTrimmedSegments()
	}
}

// archiveTrimmedSegments implements the cold archival tiering step:
// once every address in a per-stream segment's window is at or below
// that stream's trim mark, the segment can never again be read through
// a normal GET (invariant I4 already makes it GC-eligible), so its
// bytes are handed off to the ArchiveBackend and the segment is marked
// so a later pass does not re-archive it.
//
// Only per-stream segments qualify — the global log has no trim mark
// (spec.md §9 Q3: global-only entries are never GC'd), so there is no
// signal by which a global segment could ever be "provably trimmed".
func (g *GCEngine) archiveTrimmedSegments() {
	if g.streams == nil {
		return
	}
	g.streams.forEach(func(stream StreamId, sl *SegmentLog) {
		mark := g.trim.Get(stream)
		window := sl.Window()
		for idx, seg := range sl.Segments() {
			if seg.isArchived() {
				continue
			}
			// A segment is fully trimmed once its last address (the
			// window's exclusive upper bound, minus one) is covered by
			// the stream's trim mark.
			if idx*window+window-1 > mark {
				continue
			}
			data, err := seg.snapshotBytes()
			if err != nil {
				g.log.Errorf("gc: snapshot segment %s for archival: %v", seg.path, err)
				continue
			}
			key := fmt.Sprintf("%s/%d.log", stream.String(), idx*window)
			if err := ArchiveSegment(context.Background(), g.archive, key, data); err != nil {
				g.log.Errorf("gc: archive segment %s: %v", key, err)
				continue
			}
			seg.markArchived()
		}
	})
}

// trimmable implements spec.md invariant I4: an address may be
// collected only once every stream it belongs to has been trimmed at
// least that far.
func (g *GCEngine) trimmable(value LogData, addr uint64) bool {
	for s := range value.Streams {
		if g.trim.Get(s) < addr {
			return false
		}
	}
	return true
}

// ForceGC wakes the loop immediately (spec.md FORCE_GC control
// message). Non-blocking: a pending force request is not queued
// twice.
func (g *GCEngine) ForceGC() {
	select {
	case g.force <- struct{}{}:
	default:
	}
}

// SetInterval updates the sweep period, effective on the next wait
// (spec.md GC_INTERVAL control message).
func (g *GCEngine) SetInterval(d time.Duration) {
	g.interval.Store(int64(d))
}

// Shutdown stops the loop and waits for the current pass, if any, to
// finish.
func (g *GCEngine) Shutdown() {
	if g.stopped.CompareAndSwap(false, true) {
		close(g.stop)
	}
	g.wg.Wait()
}

func (g *GCEngine) Stats() (passes, freed uint64) {
	return g.passes.Load(), g.freed.Load()
}
