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

func TestRefBufRetainRelease(t *testing.T) {
	b := NewRefBuf([]byte("payload"))
	if b.RefCount() != 1 {
		t.Fatalf("expected refcount 1, got %d", b.RefCount())
	}

	b.Retain()
	if b.RefCount() != 2 {
		t.Fatalf("expected refcount 2 after Retain, got %d", b.RefCount())
	}

	b.Release()
	if b.RefCount() != 1 {
		t.Fatalf("expected refcount 1 after one Release, got %d", b.RefCount())
	}
	if string(b.Bytes()) != "payload" {
		t.Fatalf("unexpected bytes after partial release: %q", b.Bytes())
	}

	b.Release()
	if b.RefCount() != 0 {
		t.Fatalf("expected refcount 0 after final Release, got %d", b.RefCount())
	}
	if b.Bytes() != nil {
		t.Fatalf("expected nil bytes after final release, got %q", b.Bytes())
	}
}

func TestRefBufNilReceiverSafe(t *testing.T) {
	var b *RefBuf
	if b.Bytes() != nil {
		t.Fatal("nil *RefBuf.Bytes() must return nil")
	}
	if b.Retain() != nil {
		t.Fatal("nil *RefBuf.Retain() must return nil")
	}
	if b.RefCount() != 0 {
		t.Fatal("nil *RefBuf.RefCount() must return 0")
	}
	b.Release() // must not panic
}
