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
)

// LogUnit is the per-node storage service spec.md describes end to
// end: one global SegmentLog, a lazily-populated registry of
// per-stream SegmentLogs, a single write-through cache fronting both
// (keyed on LogAddress, which already distinguishes global from
// per-stream), a trim map, and a GC engine sweeping the cache against
// it.
type LogUnit struct {
	cfg Config
	log Logger

	global   *SegmentLog
	streams  *streamRegistry
	trim     *TrimMap
	lastAddr *TrimMap // per-stream most-recently-written address, for REPLEX backpointers
	cache    *WriteThroughCache
	gc       *GCEngine
	handlers *Handlers
}

// NewLogUnit wires every component per spec.md §2's data-flow diagram.
// Nothing touches disk yet beyond the top-level log-path directory;
// individual segment files and per-stream directories are created
// lazily on first touch (spec.md §5, "idempotent on first touch").
func NewLogUnit(cfg Config, log Logger) (*LogUnit, error) {
	if log == nil {
		log = DefaultLogger()
	}

	globalDir := cfg.LogPath
	if !cfg.Memory {
		globalDir = filepath.Join(cfg.LogPath, "log")
	}
	u := &LogUnit{
		cfg:      cfg,
		log:      log,
		global:   NewSegmentLog(globalDir, cfg),
		streams:  newStreamRegistry(filepath.Join(cfg.LogPath, "log"), cfg),
		trim:     NewTrimMap(),
		lastAddr: NewTrimMap(),
	}

	u.cache = NewWriteThroughCache(cfg.MaxCacheBytes, u.load, u.store)
	u.gc = NewGCEngine(u.cache, u.trim, cfg.GCInterval, log, cfg.Archive, u.streams)
	u.handlers = newHandlers(u)
	u.gc.Start()
	return u, nil
}

// segmentLogFor resolves the SegmentLog backing a (keyspace tells
// apart global vs per-stream).
func (u *LogUnit) segmentLogFor(a LogAddress) *SegmentLog {
	if a.Global {
		return u.global
	}
	return u.streams.getOrCreate(a.Stream)
}

func (u *LogUnit) load(a LogAddress) (LogData, bool, error) {
	return u.segmentLogFor(a).Read(a.Address)
}

func (u *LogUnit) store(a LogAddress, v LogData) error {
	return u.segmentLogFor(a).Append(a.Address, v)
}

// Handlers returns the request-handling façade (spec.md §4.F).
func (u *LogUnit) Handlers() *Handlers { return u.handlers }

// Shutdown cancels the GC loop, invalidates the cache (releasing every
// buffer, invariant I6), and flushes every open segment file.
func (u *LogUnit) Shutdown() error {
	u.gc.Shutdown()
	u.cache.InvalidateAll()

	var firstErr error
	if err := u.global.Close(); err != nil {
		firstErr = err
	}
	if err := u.streams.closeAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Stats is the read-only metrics snapshot (SPEC_FULL.md "Supplemented
// features"): cache occupancy and GC pass counters. Not a metrics
// exporter — just plain introspection for an operator tool or test.
type Stats struct {
	CacheWeight    int64
	CacheMaxWeight int64
	GCPasses       uint64
	GCFreed        uint64
}

func (u *LogUnit) Stats() Stats {
	passes, freed := u.gc.Stats()
	return Stats{
		CacheWeight:    u.cache.CurrentWeight(),
		CacheMaxWeight: u.cfg.MaxCacheBytes,
		GCPasses:       passes,
		GCFreed:        freed,
	}
}
