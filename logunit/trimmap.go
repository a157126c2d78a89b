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
	"sync"
	"sync/atomic"

	nlrm "github.com/launix-de/NonLockingReadMap"
)

// trimEntry is one stream's monotonic high-water trim mark. The mark
// itself is an atomic.Uint64 so the hot path — bumping an existing
// stream's mark — never goes through NonLockingReadMap.Set (which
// replaces wholesale and is only safe for the rare "first mutation of
// a key" case, see streamRegistry's doc comment).
type trimEntry struct {
	key  string
	mark *atomic.Uint64
}

func (e trimEntry) GetKey() string   { return e.key }
func (e trimEntry) ComputeSize() uint { return 32 }

// TrimMap is the spec.md §4.C concurrent stream_id -> u64 trim map.
// Not persisted: restart loses it, correctness is preserved (trim is
// only ever a GC hint, spec.md §9 Q2) and the space is re-learned on
// the next client TRIM.
type TrimMap struct {
	m        nlrm.NonLockingReadMap[trimEntry, string]
	createMu sync.Mutex
}

func NewTrimMap() *TrimMap {
	return &TrimMap{m: nlrm.New[trimEntry, string]()}
}

func (tm *TrimMap) entry(stream StreamId) *atomic.Uint64 {
	key := stream.String()
	if e := tm.m.Get(key); e != nil {
		return e.mark
	}
	tm.createMu.Lock()
	defer tm.createMu.Unlock()
	if e := tm.m.Get(key); e != nil {
		return e.mark
	}
	mark := new(atomic.Uint64)
	tm.m.Set(&trimEntry{key: key, mark: mark})
	return mark
}

// PutMax applies new = max(old, proposed) (spec.md §4.C). Safe under
// concurrent callers for the same stream: the atomic CAS loop below
// never regresses even if two PutMax calls race.
func (tm *TrimMap) PutMax(stream StreamId, proposed uint64) {
	mark := tm.entry(stream)
	for {
		old := mark.Load()
		if proposed <= old {
			return
		}
		if mark.CompareAndSwap(old, proposed) {
			return
		}
	}
}

// Get returns the current trim mark for stream, or 0 if none has ever
// been applied (spec.md: "missing key => no trim").
func (tm *TrimMap) Get(stream StreamId) uint64 {
	e := tm.m.Get(stream.String())
	if e == nil {
		return 0
	}
	return e.mark.Load()
}
