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
	"path/filepath"
	"sync"

	nlrm "github.com/launix-de/NonLockingReadMap"
)

// streamSegmentLog adapts *SegmentLog to the vendored NonLockingReadMap's
// KeyGetter[string] contract (spec.md §4.A keyspace == one SegmentLog
// per stream, plus the global one).
type streamSegmentLog struct {
	key    string
	stream StreamId
	log    *SegmentLog
}

func (e streamSegmentLog) GetKey() string   { return e.key }
func (e streamSegmentLog) ComputeSize() uint { return 64 }

// streamRegistry is the concurrent insert-if-absent map of StreamId ->
// *SegmentLog called for in spec.md §4.A/§5: "a concurrent insert-if-
// absent map keyed by StreamId; creation is side-effectful (directory
// mkdir) and must be idempotent under races."
//
// Reads (the overwhelmingly common case once a stream's directory
// exists) go through NonLockingReadMap.Get, which never blocks.
// NonLockingReadMap.Set always replaces unconditionally though — it
// only guarantees no duplicate keys, not "don't clobber a concurrent
// winner" — so creation additionally takes createMu and re-checks:
// classic double-checked locking for a lazily-created table.
type streamRegistry struct {
	basePath string
	cfg      Config

	m        nlrm.NonLockingReadMap[streamSegmentLog, string]
	createMu sync.Mutex
}

func newStreamRegistry(basePath string, cfg Config) *streamRegistry {
	return &streamRegistry{
		basePath: basePath,
		cfg:      cfg,
		m:        nlrm.New[streamSegmentLog, string](),
	}
}

// getOrCreate returns the SegmentLog for stream, creating its
// directory and SegmentLog the first time it is touched.
func (r *streamRegistry) getOrCreate(stream StreamId) *SegmentLog {
	key := stream.String()
	if e := r.m.Get(key); e != nil {
		return e.log
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()
	if e := r.m.Get(key); e != nil {
		return e.log
	}

	dir := filepath.Join(r.basePath, key)
	sl := NewSegmentLog(dir, r.cfg)
	r.m.Set(&streamSegmentLog{key: key, stream: stream, log: sl})
	return sl
}

// forEach visits every stream ever touched and its SegmentLog. Used by
// GCEngine to consider each stream's segments for cold archival once
// its trim mark has advanced past them (SPEC_FULL.md "Supplemented
// features: cold archival tiering").
func (r *streamRegistry) forEach(fn func(stream StreamId, sl *SegmentLog)) {
	for _, e := range r.m.GetAll() {
		fn(e.stream, e.log)
	}
}

// closeAll flushes every stream SegmentLog that was ever touched.
func (r *streamRegistry) closeAll() error {
	var firstErr error
	for _, e := range r.m.GetAll() {
		if err := e.log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
