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
	"errors"
	"path/filepath"
	"testing"
)

func openTestSegment(t *testing.T, path string) *segment {
	t.Helper()
	seg, err := openSegment(path, 0, 1000, 0, false, false)
	if err != nil {
		t.Fatalf("openSegment: %v", err)
	}
	t.Cleanup(func() { seg.close() })
	return seg
}

func TestSegmentAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	seg := openTestSegment(t, path)

	if err := seg.append(5, []byte("meta"), []byte("payload")); err != nil {
		t.Fatalf("append: %v", err)
	}

	meta, payload, err := seg.read(5)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(meta) != "meta" || string(payload) != "payload" {
		t.Fatalf("read back (%q, %q), want (%q, %q)", meta, payload, "meta", "payload")
	}
}

func TestSegmentReadMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	seg := openTestSegment(t, path)

	meta, payload, err := seg.read(3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if meta != nil || payload != nil {
		t.Fatalf("expected a miss to return (nil, nil), got (%v, %v)", meta, payload)
	}
}

func TestSegmentAppendRejectsOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	seg := openTestSegment(t, path)

	if err := seg.append(1, nil, []byte("first")); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := seg.append(1, nil, []byte("second"))
	if err != ErrOverwrite {
		t.Fatalf("expected ErrOverwrite on a second append to the same address, got %v", err)
	}

	// The original value must survive an attempted overwrite.
	_, payload, err := seg.read(1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(payload) != "first" {
		t.Fatalf("payload after rejected overwrite = %q, want %q", payload, "first")
	}
}

func TestSegmentRecoverAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	seg, err := openSegment(path, 0, 1000, 0, false, false)
	if err != nil {
		t.Fatalf("openSegment: %v", err)
	}

	for i, payload := range [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")} {
		if err := seg.append(uint64(i), nil, payload); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := seg.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestSegment(t, path)
	for i, want := range [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")} {
		_, payload, err := reopened.read(uint64(i))
		if err != nil {
			t.Fatalf("read %d after reopen: %v", i, err)
		}
		if string(payload) != string(want) {
			t.Fatalf("read %d after reopen = %q, want %q", i, payload, want)
		}
	}
}

// TestSegmentRecoverStopsAtTornWrite simulates a crash between the two
// fsyncs of the append protocol: a header whose WRITTEN bit is still
// clear must be treated as the tail, not as corruption, and must not
// surface as a readable record (spec.md §4.A, property P5).
func TestSegmentRecoverStopsAtTornWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	seg := openTestSegment(t, path)

	if err := seg.append(0, nil, []byte("durable")); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Hand-write a second header with WRITTEN left clear, as if the
	// process crashed between the two fsyncs of append().
	tornOffset := seg.tail
	hdr := make([]byte, headerSize)
	hdr[0], hdr[1] = 'L', 'E'
	// flags (bytes 2:4) left zero: WRITTEN clear.
	seg.file.WriteAt(hdr, tornOffset)
	seg.file.Sync()
	seg.close()

	reopened := openTestSegment(t, path)
	if reopened.tail != tornOffset {
		t.Fatalf("recovered tail = %d, want %d (torn write must be discarded)", reopened.tail, tornOffset)
	}

	_, payload, err := reopened.read(0)
	if err != nil {
		t.Fatalf("read durable record: %v", err)
	}
	if string(payload) != "durable" {
		t.Fatalf("durable record lost across recovery: %q", payload)
	}

	// A subsequent append must reuse the torn-write's offset rather
	// than leaving a gap.
	if err := reopened.append(1, nil, []byte("next")); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	if off := reopened.offsets[1]; off != tornOffset {
		t.Fatalf("append after recovery landed at offset %d, want %d", off, tornOffset)
	}
}

// TestSegmentChecksumMismatchQuarantines covers spec.md §7: a detected
// checksum mismatch marks the segment read-only and returns a
// *CorruptionError, rather than silently returning bad bytes.
func TestSegmentChecksumMismatchQuarantines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	seg := openTestSegment(t, path)

	if err := seg.append(0, nil, []byte("original")); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Corrupt the payload bytes in place without touching the checksum.
	off, ok := seg.offsets[0]
	if !ok {
		t.Fatal("expected address 0 to be indexed")
	}
	seg.file.WriteAt([]byte("CORRUPT!"), off+headerSize)

	_, _, err := seg.read(0)
	var corrupt *CorruptionError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected *CorruptionError, got %v", err)
	}
	if !seg.isReadOnly() {
		t.Fatal("expected segment to be marked read-only after a checksum mismatch")
	}
	if err := seg.append(1, nil, []byte("x")); err == nil {
		t.Fatal("expected append to fail once a segment is read-only")
	}
}

func TestSegmentSizeLimitRejectsOversizeAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	seg, err := openSegment(path, 0, 1000, headerSize+4, false, false)
	if err != nil {
		t.Fatalf("openSegment: %v", err)
	}
	t.Cleanup(func() { seg.close() })

	if err := seg.append(0, nil, []byte("ab")); err != nil {
		t.Fatalf("first append within limit: %v", err)
	}
	if err := seg.append(1, nil, []byte("cd")); err == nil {
		t.Fatal("expected the second append to exceed the segment's size limit")
	}
}

func TestSegmentMemoryBackend(t *testing.T) {
	seg, err := openSegment("ignored", 0, 1000, 0, false, true)
	if err != nil {
		t.Fatalf("openSegment (memory): %v", err)
	}
	defer seg.close()

	if err := seg.append(0, nil, []byte("ephemeral")); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, payload, err := seg.read(0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(payload) != "ephemeral" {
		t.Fatalf("payload = %q, want %q", payload, "ephemeral")
	}
}
