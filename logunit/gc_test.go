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
	"testing"
	"time"
)

// TestGCEngineTrimmableBothStreams is spec.md invariant I4: an address
// belonging to several streams may only be reclaimed once every one
// of those streams has been trimmed past it.
func TestGCEngineTrimmableBothStreams(t *testing.T) {
	trim := NewTrimMap()
	g := &GCEngine{trim: trim}

	s1, s2 := NewStreamId(), NewStreamId()
	value := LogData{Streams: map[StreamId]struct{}{s1: {}, s2: {}}}

	if g.trimmable(value, 5) {
		t.Fatal("expected not trimmable when neither stream has been trimmed")
	}

	trim.PutMax(s1, 10)
	if g.trimmable(value, 5) {
		t.Fatal("expected not trimmable until every stream is trimmed past the address")
	}

	trim.PutMax(s2, 10)
	if !g.trimmable(value, 5) {
		t.Fatal("expected trimmable once every stream is trimmed past the address")
	}
}

func TestGCEngineRunPassInvalidatesTrimmedEntries(t *testing.T) {
	b := newBackingStore()
	cache := NewWriteThroughCache(1<<20, b.load, b.store)
	trim := NewTrimMap()
	g := NewGCEngine(cache, trim, time.Hour, DefaultLogger(), nil, nil)

	s := NewStreamId()
	addr := StreamAddress(s, 5)
	if err := cache.Put(addr, NewDataEntry([]byte("x")).WithStream(s, 0)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	trim.PutMax(s, 10)

	g.runPass()

	if _, ok := cache.PeekIfPresent(addr); ok {
		t.Fatal("expected the trimmed entry to be invalidated by a GC pass")
	}
	if passes, freed := g.Stats(); passes != 1 || freed != 1 {
		t.Fatalf("Stats() = (%d, %d), want (1, 1)", passes, freed)
	}
}

func TestGCEngineRunPassSkipsUntrimmedEntries(t *testing.T) {
	b := newBackingStore()
	cache := NewWriteThroughCache(1<<20, b.load, b.store)
	trim := NewTrimMap()
	g := NewGCEngine(cache, trim, time.Hour, DefaultLogger(), nil, nil)

	s := NewStreamId()
	addr := StreamAddress(s, 5)
	if err := cache.Put(addr, NewDataEntry([]byte("x")).WithStream(s, 0)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// No PutMax at all: trim mark defaults to 0, well below address 5.

	g.runPass()

	if _, ok := cache.PeekIfPresent(addr); !ok {
		t.Fatal("expected an untrimmed entry to survive a GC pass")
	}
}

// TestGCEngineNeverCollectsGlobalOnlyEntries is OPEN QUESTIONS Q3: an
// entry with no stream membership has nothing to trim against, so GC
// must leave it alone rather than treating "no streams" as
// automatically trimmable.
func TestGCEngineNeverCollectsGlobalOnlyEntries(t *testing.T) {
	b := newBackingStore()
	cache := NewWriteThroughCache(1<<20, b.load, b.store)
	trim := NewTrimMap()
	g := NewGCEngine(cache, trim, time.Hour, DefaultLogger(), nil, nil)

	addr := GlobalAddress(1)
	if err := cache.Put(addr, NewDataEntry([]byte("x"))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	g.runPass()

	if _, ok := cache.PeekIfPresent(addr); !ok {
		t.Fatal("expected a global-only entry to survive GC")
	}
}

func TestGCEngineForceGCWakesLoopPromptly(t *testing.T) {
	b := newBackingStore()
	cache := NewWriteThroughCache(1<<20, b.load, b.store)
	trim := NewTrimMap()
	// A very long interval: only ForceGC should make a pass happen
	// within this test's lifetime.
	g := NewGCEngine(cache, trim, time.Hour, DefaultLogger(), nil, nil)
	g.Start()
	defer g.Shutdown()

	g.ForceGC()

	deadline := time.After(2 * time.Second)
	for {
		if passes, _ := g.Stats(); passes >= 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("ForceGC did not trigger a pass within 2s")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// fakeArchive is an in-memory ArchiveBackend for exercising
// GCEngine.archiveTrimmedSegments without a real S3/Ceph endpoint.
type fakeArchive struct {
	mu   sync.Mutex
	puts int
	data map[string][]byte
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{data: make(map[string][]byte)}
}

func (f *fakeArchive) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	cp := make([]byte, len(data))
	copy(cp, data)
	f.data[key] = cp
	return nil
}

func (f *fakeArchive) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

// TestGCEngineArchivesFullyTrimmedSegments covers the cold archival
// tiering step: a segment whose entire address window is trimmed gets
// handed to the ArchiveBackend exactly once, and an untrimmed segment
// is left alone.
func TestGCEngineArchivesFullyTrimmedSegments(t *testing.T) {
	cfg, err := NewConfig(WithMemory())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	cfg.SegmentSize = 4

	streams := newStreamRegistry("", cfg)
	stream := NewStreamId()
	sl := streams.getOrCreate(stream)

	for addr := uint64(0); addr < 4; addr++ {
		if err := sl.Append(addr, NewDataEntry([]byte("x")).WithStream(stream, addr)); err != nil {
			t.Fatalf("Append(%d): %v", addr, err)
		}
	}
	// One more address in a second, untrimmed segment.
	if err := sl.Append(4, NewDataEntry([]byte("y")).WithStream(stream, 4)); err != nil {
		t.Fatalf("Append(4): %v", err)
	}

	trim := NewTrimMap()
	trim.PutMax(stream, 4) // covers the whole [0,4) window of segment 0

	archive := newFakeArchive()
	b := newBackingStore()
	cache := NewWriteThroughCache(1<<20, b.load, b.store)
	g := NewGCEngine(cache, trim, time.Hour, DefaultLogger(), archive, streams)

	g.archiveTrimmedSegments()

	key := fmt.Sprintf("%s/%d.log", stream.String(), 0)
	if archive.puts != 1 {
		t.Fatalf("expected exactly one archived segment, got %d puts", archive.puts)
	}
	restored, err := RestoreSegment(context.Background(), archive, key)
	if err != nil {
		t.Fatalf("RestoreSegment: %v", err)
	}
	if len(restored) == 0 {
		t.Fatal("expected non-empty restored segment bytes")
	}

	// A second pass must not re-archive the same segment, and the
	// still-open second segment must never qualify (its window isn't
	// fully trimmed).
	g.archiveTrimmedSegments()
	if archive.puts != 1 {
		t.Fatalf("expected no re-archival on a second pass, got %d puts", archive.puts)
	}
}

func TestGCEngineShutdownStopsTheLoop(t *testing.T) {
	b := newBackingStore()
	cache := NewWriteThroughCache(1<<20, b.load, b.store)
	trim := NewTrimMap()
	g := NewGCEngine(cache, trim, time.Millisecond, DefaultLogger(), nil, nil)
	g.Start()
	g.Shutdown()

	passesAfterShutdown, _ := g.Stats()
	time.Sleep(20 * time.Millisecond)
	passesLater, _ := g.Stats()
	if passesLater != passesAfterShutdown {
		t.Fatal("expected no further GC passes after Shutdown")
	}
}
