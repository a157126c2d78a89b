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
	"strconv"

	"github.com/google/uuid"
)

// StreamId is the 128-bit opaque stream identifier. The log unit never
// interprets it beyond equality and string form.
type StreamId uuid.UUID

func NewStreamId() StreamId {
	return StreamId(uuid.New())
}

// ParseStreamId parses the canonical UUID string form used on disk
// (per-stream log directories are named after it).
func ParseStreamId(s string) (StreamId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return StreamId{}, err
	}
	return StreamId(u), nil
}

func (s StreamId) String() string {
	return uuid.UUID(s).String()
}

// LogAddress is the cache key: a 64-bit position plus an optional
// stream. The zero-value stream (global=true) denotes the global log.
type LogAddress struct {
	Address uint64
	Global  bool
	Stream  StreamId
}

// GlobalAddress builds a LogAddress into the global log.
func GlobalAddress(addr uint64) LogAddress {
	return LogAddress{Address: addr, Global: true}
}

// StreamAddress builds a LogAddress into a per-stream log.
func StreamAddress(stream StreamId, addr uint64) LogAddress {
	return LogAddress{Address: addr, Global: false, Stream: stream}
}

func (a LogAddress) String() string {
	if a.Global {
		return "global@" + strconv.FormatUint(a.Address, 10)
	}
	return a.Stream.String() + "@" + strconv.FormatUint(a.Address, 10)
}
