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
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/pierrec/lz4/v4"
)

// ArchiveBackend is the cold-storage target for fully-trimmed segment
// files (SPEC_FULL.md "Supplemented features: cold archival tiering").
// It is never on the hot append/read path — segment.go and
// segmentlog.go never import this package's build — only a GC or
// operator-triggered archival pass touches it.
type ArchiveBackend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// BackendRegistry maps a config-file backend name ("s3", "ceph") to a
// constructor taking that backend's JSON config block. Mirrors the
// teacher's BackendRegistry["ceph"] = ... factory-by-name pattern
// (storage/persistence-ceph.go) rather than a type switch, so adding a
// backend never requires editing this file.
var BackendRegistry = map[string]func(raw json.RawMessage) (ArchiveBackend, error){}

// ArchiveSegment LZ4-frames data and hands it to backend under key.
// Compression only ever happens here, in the cold path, after a
// segment is already fully durable and provably safe to copy off-box
// — the hot append/read path in segment.go never interprets or
// transforms payload bytes (spec.md §1 non-goal).
func ArchiveSegment(ctx context.Context, backend ArchiveBackend, key string, data []byte) error {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return backend.Put(ctx, key, buf.Bytes())
}

// RestoreSegment fetches key from backend and undoes the LZ4 framing
// ArchiveSegment applied.
func RestoreSegment(ctx context.Context, backend ArchiveBackend, key string) ([]byte, error) {
	raw, err := backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	r := lz4.NewReader(bytes.NewReader(raw))
	return io.ReadAll(r)
}
