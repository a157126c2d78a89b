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
	"testing"
)

func TestTrimMapGetDefaultsToZero(t *testing.T) {
	tm := NewTrimMap()
	if mark := tm.Get(NewStreamId()); mark != 0 {
		t.Fatalf("Get on an untouched stream = %d, want 0", mark)
	}
}

func TestTrimMapPutMaxAdvances(t *testing.T) {
	tm := NewTrimMap()
	s := NewStreamId()

	tm.PutMax(s, 10)
	if mark := tm.Get(s); mark != 10 {
		t.Fatalf("after PutMax(10): Get = %d, want 10", mark)
	}
	tm.PutMax(s, 20)
	if mark := tm.Get(s); mark != 20 {
		t.Fatalf("after PutMax(20): Get = %d, want 20", mark)
	}
}

// TestTrimMapPutMaxNeverRegresses is spec.md property P3: concurrent
// or out-of-order PutMax calls must never move a stream's mark
// backwards.
func TestTrimMapPutMaxNeverRegresses(t *testing.T) {
	tm := NewTrimMap()
	s := NewStreamId()

	tm.PutMax(s, 100)
	tm.PutMax(s, 50) // stale/out-of-order proposal
	if mark := tm.Get(s); mark != 100 {
		t.Fatalf("Get after a lower PutMax = %d, want 100 (must not regress)", mark)
	}
}

func TestTrimMapPutMaxConcurrentConvergesToMax(t *testing.T) {
	tm := NewTrimMap()
	s := NewStreamId()

	var wg sync.WaitGroup
	for i := uint64(1); i <= 100; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			tm.PutMax(s, v)
		}(i)
	}
	wg.Wait()

	if mark := tm.Get(s); mark != 100 {
		t.Fatalf("Get after 100 concurrent PutMax calls = %d, want 100", mark)
	}
}

func TestTrimMapStreamsAreIndependent(t *testing.T) {
	tm := NewTrimMap()
	s1, s2 := NewStreamId(), NewStreamId()

	tm.PutMax(s1, 5)
	if mark := tm.Get(s2); mark != 0 {
		t.Fatalf("unrelated stream's mark = %d, want 0", mark)
	}
}
