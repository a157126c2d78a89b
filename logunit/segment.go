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
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
	"sync/atomic"

	nlrm "github.com/launix-de/NonLockingReadMap"
)

// headerSize is the on-disk HEADER layout (spec.md §3), little-endian,
// with one addition: a trailing CRC32C over META||PAYLOAD, stored in
// what spec.md calls the header's "reserved bytes" for checksum
// verification.
//
//	magic[2] 'L' 'E'
//	flags    uint16  (bit0 = WRITTEN)
//	addr     uint64
//	size     uint32  (meta + payload length)
//	metaSize uint32
//	checksum uint32  (CRC32C, 0 if NoVerify was set at write time)
const headerSize = 2 + 2 + 8 + 4 + 4 + 4

const flagWritten uint16 = 1 << 0

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// segment holds one fixed address-window file (spec.md §3 "Segment
// File"). Its writer lock guards the tail pointer and the address
// index together, satisfying spec.md §5 "per-segment writer lock".
type segment struct {
	path      string
	base      uint64 // first address in this segment's window
	window    uint64 // SEGMENT_SIZE
	sizeLimit int64
	noVerify  bool

	mu       sync.Mutex
	file     rawSegmentFile
	tail     int64
	index    nlrmBitIndex
	offsets  map[uint64]int64 // addr -> file offset of its header, for O(1) decode
	readOnly atomic.Bool
	archived atomic.Bool // set once this segment has been handed to an ArchiveBackend
}

// nlrmBitIndex is the spec.md §4.B "Address Space Index": per open
// segment, a set of present addresses. Backed by the vendored
// NonLockingReadMap's bitmap (third_party/NonLockingReadMap/bitmap.go)
// keyed by offset within the segment window — lock-free reads for the
// read-path fast-miss check, mutated only under the segment's writer
// lock on successful append (spec.md invariant I2).
type nlrmBitIndex struct {
	bits nlrm.NonBlockingBitMap
}

func (idx *nlrmBitIndex) contains(offset uint32) bool { return idx.bits.Get(offset) }
func (idx *nlrmBitIndex) add(offset uint32)           { idx.bits.Set(offset, true) }

// openSegment opens (scanning for recovery) or creates the segment
// file covering addresses [base, base+window).
func openSegment(path string, base, window uint64, sizeLimit int64, noVerify bool, memory bool) (*segment, error) {
	var backend rawSegmentFile
	var err error
	if memory {
		backend = newMemBackend()
	} else {
		backend, err = openFileBackend(path)
		if err != nil {
			return nil, err
		}
	}
	s := &segment{
		path:      path,
		base:      base,
		window:    window,
		sizeLimit: sizeLimit,
		noVerify:  noVerify,
		file:      backend,
		offsets:   make(map[uint64]int64),
	}
	if err := s.recover(); err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

// recover scans the file sequentially from offset 0, populating the
// address index and establishing the tail (spec.md §4.A "Segment
// open/recovery").
func (s *segment) recover() error {
	size, err := s.file.Size()
	if err != nil {
		return err
	}
	var off int64
	hdr := make([]byte, headerSize)
	for {
		if off+headerSize > size {
			break // no room for another header: clean end of data
		}
		if _, err := s.file.ReadAt(hdr, off); err != nil {
			return err
		}
		if hdr[0] != 'L' || hdr[1] != 'E' {
			return &CorruptionError{Path: s.path, Offset: off, Reason: "bad header magic"}
		}
		flags := binary.LittleEndian.Uint16(hdr[2:4])
		addr := binary.LittleEndian.Uint64(hdr[4:12])
		entrySize := binary.LittleEndian.Uint32(hdr[12:16])
		metaSize := binary.LittleEndian.Uint32(hdr[16:20])
		checksum := binary.LittleEndian.Uint32(hdr[20:24])

		if flags&flagWritten == 0 {
			// torn write or genuine end of data: rewind and stop.
			s.tail = off
			return nil
		}
		if metaSize > entrySize {
			return &CorruptionError{Path: s.path, Offset: off, Reason: "meta size exceeds entry size"}
		}
		if off+headerSize+int64(entrySize) > size {
			return &CorruptionError{Path: s.path, Offset: off, Reason: "entry size exceeds file bounds"}
		}
		if addr < s.base || addr >= s.base+s.window {
			return &CorruptionError{Path: s.path, Offset: off, Reason: "address outside segment window"}
		}
		if !s.noVerify {
			body := make([]byte, entrySize)
			if _, err := s.file.ReadAt(body, off+headerSize); err != nil {
				return err
			}
			if crc32.Checksum(body, crc32cTable) != checksum {
				s.readOnly.Store(true)
				return &CorruptionError{Path: s.path, Offset: off, Reason: "checksum mismatch"}
			}
		}
		s.index.add(uint32(addr - s.base))
		s.offsets[addr] = off
		off += headerSize + int64(entrySize)
	}
	s.tail = off
	return nil
}

// append writes one record. See spec.md §4.A for the exact two-fsync
// protocol this implements.
func (s *segment) append(addr uint64, meta, payload []byte) error {
	if s.readOnly.Load() {
		return &CorruptionError{Path: s.path, Reason: "segment is read-only after a prior corruption"}
	}
	offset := uint32(addr - s.base)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index.contains(offset) {
		return ErrOverwrite
	}
	if s.sizeLimit > 0 && s.tail+headerSize+int64(len(meta)+len(payload)) > s.sizeLimit {
		return fmt.Errorf("logunit: segment %s is full", s.path)
	}

	recordOff := s.tail
	entrySize := uint32(len(meta) + len(payload))
	var checksum uint32
	if !s.noVerify {
		crc := crc32.New(crc32cTable)
		crc.Write(meta)
		crc.Write(payload)
		checksum = crc.Sum32()
	}

	hdr := make([]byte, headerSize)
	hdr[0], hdr[1] = 'L', 'E'
	binary.LittleEndian.PutUint16(hdr[2:4], 0) // WRITTEN clear
	binary.LittleEndian.PutUint64(hdr[4:12], addr)
	binary.LittleEndian.PutUint32(hdr[12:16], entrySize)
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(len(meta)))
	binary.LittleEndian.PutUint32(hdr[20:24], checksum)

	if _, err := s.file.WriteAt(hdr, recordOff); err != nil {
		return err
	}
	if len(meta) > 0 {
		if _, err := s.file.WriteAt(meta, recordOff+headerSize); err != nil {
			return err
		}
	}
	if len(payload) > 0 {
		if _, err := s.file.WriteAt(payload, recordOff+headerSize+int64(len(meta))); err != nil {
			return err
		}
	}
	if err := s.file.Sync(); err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(hdr[2:4], flagWritten)
	if _, err := s.file.WriteAt(hdr[2:4], recordOff+2); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}

	// Only now, after the second fsync, does the address become
	// discoverable (spec.md invariant I2).
	s.index.add(offset)
	s.offsets[addr] = recordOff
	s.tail = recordOff + headerSize + int64(entrySize)
	return nil
}

// read decodes the record at addr, or returns (nil, nil) on a fast
// miss against the address index.
func (s *segment) read(addr uint64) ([]byte, []byte, error) {
	offset := uint32(addr - s.base)
	if !s.index.contains(offset) {
		return nil, nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the lock: a concurrent append may have raced the
	// lock-free index check above. If it's genuinely absent now too
	// (shouldn't happen, addresses never get un-added) we still need
	// to locate the record by scanning is unnecessary — the bitmap is
	// monotonic, so a true hit here always has a durable header.
	return s.readLocked(addr)
}

func (s *segment) readLocked(addr uint64) ([]byte, []byte, error) {
	// Addresses can appear at any offset within the segment (append
	// order need not match address order, spec.md §3); offsets maps
	// straight to the header so decode is O(1) once a record is known
	// present, instead of rescanning the file per miss.
	off, ok := s.offsets[addr]
	if !ok {
		return nil, nil, nil
	}
	hdr := make([]byte, headerSize)
	if _, err := s.file.ReadAt(hdr, off); err != nil {
		return nil, nil, err
	}
	entrySize := binary.LittleEndian.Uint32(hdr[12:16])
	metaSize := binary.LittleEndian.Uint32(hdr[16:20])
	checksum := binary.LittleEndian.Uint32(hdr[20:24])

	body := make([]byte, entrySize)
	if _, err := s.file.ReadAt(body, off+headerSize); err != nil {
		return nil, nil, err
	}
	if !s.noVerify && crc32.Checksum(body, crc32cTable) != checksum {
		s.readOnly.Store(true)
		return nil, nil, &CorruptionError{Path: s.path, Offset: off, Reason: "checksum mismatch"}
	}
	return body[:metaSize], body[metaSize:], nil
}

func (s *segment) close() error {
	return s.file.Close()
}

func (s *segment) isReadOnly() bool {
	return s.readOnly.Load()
}

func (s *segment) isArchived() bool { return s.archived.Load() }
func (s *segment) markArchived()    { s.archived.Store(true) }

// snapshotBytes reads the segment file's entire current content, from
// offset 0 through the tail, for handoff to an ArchiveBackend. Only
// ever called once every address in the segment's window is provably
// trimmed (GCEngine.archiveTrimmedSegments), so no concurrent append
// can still be in flight against it in practice — but it still takes
// the writer lock, both to read a consistent tail and because
// ReaderAt's contract allows returning io.EOF alongside a full read.
func (s *segment) snapshotBytes() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, s.tail)
	if len(buf) == 0 {
		return buf, nil
	}
	_, err := s.file.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}
