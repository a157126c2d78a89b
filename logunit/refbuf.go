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

import "sync/atomic"

// RefBuf is an explicit reference-counted byte buffer. It replaces the
// source's reliance on its transport framework's refcounted buffers
// (spec.md §9, "external-refcount buffers"): the cache holds exactly
// one reference per cached entry, and whichever of evict/trim/shutdown
// fires first releases it (spec.md invariant I6). There is no
// finalizer; a buffer that is never released simply leaks, same as
// the source.
type RefBuf struct {
	data     []byte
	refcount atomic.Int32
}

// NewRefBuf wraps data with an initial reference count of one.
func NewRefBuf(data []byte) *RefBuf {
	b := &RefBuf{data: data}
	b.refcount.Store(1)
	return b
}

func (b *RefBuf) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Retain adds one reference. Call before handing the buffer to a new
// owner (e.g. a second cache entry, or a handler response).
func (b *RefBuf) Retain() *RefBuf {
	if b == nil {
		return nil
	}
	b.refcount.Add(1)
	return b
}

// Release drops one reference. The last release clears the backing
// slice so a use-after-release shows up as a nil slice instead of
// silently reading freed-looking memory.
func (b *RefBuf) Release() {
	if b == nil {
		return
	}
	if b.refcount.Add(-1) == 0 {
		b.data = nil
	}
}

func (b *RefBuf) RefCount() int32 {
	if b == nil {
		return 0
	}
	return b.refcount.Load()
}
