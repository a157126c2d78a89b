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

import "testing"

func TestStreamIdRoundTrip(t *testing.T) {
	id := NewStreamId()
	parsed, err := ParseStreamId(id.String())
	if err != nil {
		t.Fatalf("ParseStreamId: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %v != %v", parsed, id)
	}
}

func TestParseStreamIdRejectsGarbage(t *testing.T) {
	if _, err := ParseStreamId("not-a-uuid"); err == nil {
		t.Fatal("expected an error parsing a non-uuid string")
	}
}

func TestLogAddressGlobalVsStream(t *testing.T) {
	g := GlobalAddress(42)
	if !g.Global || g.Address != 42 {
		t.Fatalf("unexpected GlobalAddress: %+v", g)
	}

	s := NewStreamId()
	a := StreamAddress(s, 7)
	if a.Global {
		t.Fatalf("StreamAddress should not be Global: %+v", a)
	}
	if a.Stream != s || a.Address != 7 {
		t.Fatalf("unexpected StreamAddress: %+v", a)
	}

	if g == a {
		t.Fatal("global and stream addresses at different numeric positions must differ")
	}
}

func TestLogAddressUsableAsMapKey(t *testing.T) {
	s := NewStreamId()
	m := map[LogAddress]int{
		GlobalAddress(1):       1,
		StreamAddress(s, 1):    2,
		StreamAddress(s, 2):    3,
	}
	if len(m) != 3 {
		t.Fatalf("expected 3 distinct keys, got %d", len(m))
	}
}
