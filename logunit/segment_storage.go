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
	"os"
	"sync"
)

// rawSegmentFile is the minimal durability surface a segment needs.
// fileBackend satisfies it with a real *os.File (spec.md external
// interface "memory" option off); memBackend satisfies it with a
// plain byte slice (option on — "data lost on exit").
type rawSegmentFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Sync() error
	Close() error
	Size() (int64, error)
}

type fileBackend struct {
	f *os.File
}

func openFileBackend(path string) (*fileBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, err
	}
	return &fileBackend{f: f}, nil
}

func (b *fileBackend) ReadAt(p []byte, off int64) (int, error)  { return b.f.ReadAt(p, off) }
func (b *fileBackend) WriteAt(p []byte, off int64) (int, error) { return b.f.WriteAt(p, off) }
func (b *fileBackend) Sync() error                              { return b.f.Sync() }
func (b *fileBackend) Close() error                             { return b.f.Close() }
func (b *fileBackend) Size() (int64, error) {
	st, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// memBackend is the "memory" config option's segment backend: no
// files touched, everything lost on process exit.
type memBackend struct {
	mu   sync.Mutex
	data []byte
}

func newMemBackend() *memBackend {
	return &memBackend{}
}

func (b *memBackend) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off >= int64(len(b.data)) {
		return 0, os.ErrClosed
	}
	n := copy(p, b.data[off:])
	return n, nil
}

func (b *memBackend) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:end], p)
	return len(p), nil
}

func (b *memBackend) Sync() error  { return nil }
func (b *memBackend) Close() error { return nil }
func (b *memBackend) Size() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data)), nil
}
