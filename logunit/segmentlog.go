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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SegmentLog is the storage unit for one keyspace — the global log, or
// one stream's log (spec.md §4.A). It owns a directory (or nothing, in
// memory mode) and lazily opens the segment files addresses fall into.
type SegmentLog struct {
	dir       string
	memory    bool
	window    uint64
	sizeLimit int64
	noVerify  bool

	mu       sync.RWMutex
	segments map[uint64]*segment // segment index -> segment
}

// NewSegmentLog constructs a SegmentLog rooted at dir. dir is created
// lazily: nothing touches disk until the first append or read opens a
// segment (spec.md §5, "idempotent on first touch").
func NewSegmentLog(dir string, cfg Config) *SegmentLog {
	return &SegmentLog{
		dir:       dir,
		memory:    cfg.Memory,
		window:    cfg.SegmentSize,
		sizeLimit: cfg.SegmentFileSizeLimit,
		noVerify:  cfg.NoVerify,
		segments:  make(map[uint64]*segment),
	}
}

func (sl *SegmentLog) segmentIndex(addr uint64) uint64 { return addr / sl.window }

func (sl *SegmentLog) segmentPath(idx uint64) string {
	return filepath.Join(sl.dir, fmt.Sprintf("%d.log", idx*sl.window))
}

// getOrOpenSegment implements the double-checked-locking "concurrent
// get_or_insert" pattern spec.md §5 calls for: a fast read-locked
// lookup for the common case, falling back to a write-locked open
// (which may scan/create a file) the first time a segment is touched.
func (sl *SegmentLog) getOrOpenSegment(idx uint64) (*segment, error) {
	sl.mu.RLock()
	seg, ok := sl.segments[idx]
	sl.mu.RUnlock()
	if ok {
		return seg, nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if seg, ok := sl.segments[idx]; ok {
		return seg, nil
	}

	if !sl.memory {
		if err := os.MkdirAll(sl.dir, 0750); err != nil {
			return nil, err
		}
	}
	seg, err := openSegment(sl.segmentPath(idx), idx*sl.window, sl.window, sl.sizeLimit, sl.noVerify, sl.memory)
	if err != nil {
		return nil, err
	}
	sl.segments[idx] = seg
	return seg, nil
}

// Append durably stores entry at address. Returns ErrOverwrite if
// address is already durable (spec.md invariant I5); any other
// returned error (e.g. *CorruptionError) leaves the address writable.
func (sl *SegmentLog) Append(address uint64, entry LogData) error {
	seg, err := sl.getOrOpenSegment(sl.segmentIndex(address))
	if err != nil {
		return err
	}
	meta, err := encodeMeta(entry)
	if err != nil {
		return err
	}
	return seg.append(address, meta, entry.Payload())
}

// Read decodes the record at address, or returns (LogData{EMPTY}, false, nil)
// if nothing is stored there.
func (sl *SegmentLog) Read(address uint64) (LogData, bool, error) {
	seg, err := sl.getOrOpenSegment(sl.segmentIndex(address))
	if err != nil {
		return LogData{}, false, err
	}
	meta, payload, err := seg.read(address)
	if err != nil {
		return LogData{}, false, err
	}
	if meta == nil && payload == nil {
		return LogData{}, false, nil
	}
	entry, err := decodeMeta(meta)
	if err != nil {
		return LogData{}, false, err
	}
	if len(payload) > 0 || entry.Type == DATA {
		entry.Buf = NewRefBuf(payload)
	}
	return entry, true, nil
}

// Stat reports whether the segment covering address is open and
// whether it has been quarantined by a checksum failure.
func (sl *SegmentLog) Stat(address uint64) (open bool, readOnly bool) {
	idx := sl.segmentIndex(address)
	sl.mu.RLock()
	seg, ok := sl.segments[idx]
	sl.mu.RUnlock()
	if !ok {
		return false, false
	}
	return true, seg.isReadOnly()
}

// Segments returns a snapshot of every currently open segment, keyed
// by segment index. Used by GCEngine to consider a stream's segments
// for cold archival once its trim mark has advanced past them.
func (sl *SegmentLog) Segments() map[uint64]*segment {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	out := make(map[uint64]*segment, len(sl.segments))
	for idx, seg := range sl.segments {
		out[idx] = seg
	}
	return out
}

// Window returns the number of addresses per segment file.
func (sl *SegmentLog) Window() uint64 { return sl.window }

// Close flushes and releases every open segment file handle.
func (sl *SegmentLog) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	var firstErr error
	for _, seg := range sl.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// wireMeta is the on-disk JSON shadow of LogData's non-payload fields.
// Kept separate from LogData itself so StreamId (a uuid.UUID) and the
// RefBuf payload never need struct tags of their own.
type wireMeta struct {
	Type         EntryType         `json:"type"`
	Streams      []string          `json:"streams,omitempty"`
	Backpointers map[string]uint64 `json:"backpointers,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

func encodeMeta(d LogData) ([]byte, error) {
	w := wireMeta{Type: d.Type}
	if len(d.Streams) > 0 {
		w.Streams = make([]string, 0, len(d.Streams))
		for s := range d.Streams {
			w.Streams = append(w.Streams, s.String())
		}
	}
	if len(d.Backpointers) > 0 {
		w.Backpointers = make(map[string]uint64, len(d.Backpointers))
		for s, v := range d.Backpointers {
			w.Backpointers[s.String()] = v
		}
	}
	if len(d.Metadata) > 0 {
		w.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			w.Metadata[string(k)] = v
		}
	}
	return json.Marshal(w)
}

func decodeMeta(raw []byte) (LogData, error) {
	if len(raw) == 0 {
		return LogData{Type: DATA}, nil
	}
	var w wireMeta
	if err := json.Unmarshal(raw, &w); err != nil {
		return LogData{}, err
	}
	d := LogData{Type: w.Type}
	if len(w.Streams) > 0 {
		d.Streams = make(map[StreamId]struct{}, len(w.Streams))
		for _, s := range w.Streams {
			id, err := ParseStreamId(s)
			if err != nil {
				return LogData{}, err
			}
			d.Streams[id] = struct{}{}
		}
	}
	if len(w.Backpointers) > 0 {
		d.Backpointers = make(map[StreamId]uint64, len(w.Backpointers))
		for s, v := range w.Backpointers {
			id, err := ParseStreamId(s)
			if err != nil {
				return LogData{}, err
			}
			d.Backpointers[id] = v
		}
	}
	if len(w.Metadata) > 0 {
		d.Metadata = make(map[MetaKey]any, len(w.Metadata))
		for k, v := range w.Metadata {
			d.Metadata[MetaKey(k)] = v
		}
	}
	return d, nil
}
