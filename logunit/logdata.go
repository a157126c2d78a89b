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

// EntryType classifies a LogData record (spec.md §3).
type EntryType uint8

const (
	// EMPTY denotes "never written". Never stored on disk; it is what
	// a read of an absent address synthesizes.
	EMPTY EntryType = iota
	DATA
	HOLE
	TRIMMED
)

func (t EntryType) String() string {
	switch t {
	case DATA:
		return "DATA"
	case HOLE:
		return "HOLE"
	case TRIMMED:
		return "TRIMMED"
	default:
		return "EMPTY"
	}
}

// MetaKey enumerates the well-known metadata fields a LogData can
// carry. The set is open-ended on the wire (arbitrary keys are legal)
// but these are the ones this module interprets.
type MetaKey string

const (
	MetaCommit          MetaKey = "COMMIT"
	MetaRank            MetaKey = "RANK"
	MetaGlobalAddress   MetaKey = "GLOBAL_ADDRESS"
	MetaStreamAddresses MetaKey = "STREAM_ADDRESSES"
)

// LogData is one log entry. Payload is owned through Buf (a *RefBuf);
// Payload() is a convenience accessor. A LogData with a nil Buf has an
// empty/absent payload (EMPTY, HOLE and TRIMMED records never carry
// one).
type LogData struct {
	Type         EntryType
	Buf          *RefBuf
	Streams      map[StreamId]struct{}
	Backpointers map[StreamId]uint64
	Metadata     map[MetaKey]any
}

func EmptyData() LogData {
	return LogData{Type: EMPTY}
}

func HoleData() LogData {
	return LogData{Type: HOLE}
}

// NewDataEntry builds a DATA record. payload is retained (refcount 1);
// the caller transfers ownership of that reference to the returned
// LogData.
func NewDataEntry(payload []byte) LogData {
	return LogData{Type: DATA, Buf: NewRefBuf(payload)}
}

func (d LogData) Payload() []byte {
	return d.Buf.Bytes()
}

// Weight is the cache weight of this entry: payload length, or 1 for
// entries without a payload (spec.md §3 "Cache Entry").
func (d LogData) Weight() int64 {
	if d.Buf == nil {
		return 1
	}
	if n := len(d.Buf.Bytes()); n > 0 {
		return int64(n)
	}
	return 1
}

// WithStream returns a copy of d with stream s added to its stream
// set and backpointer prev recorded for s. Used when building a
// REPLEX write's per-stream placements from a shared payload.
func (d LogData) WithStream(s StreamId, prev uint64) LogData {
	out := d
	out.Streams = make(map[StreamId]struct{}, len(d.Streams)+1)
	for k := range d.Streams {
		out.Streams[k] = struct{}{}
	}
	out.Streams[s] = struct{}{}
	out.Backpointers = make(map[StreamId]uint64, len(d.Backpointers)+1)
	for k, v := range d.Backpointers {
		out.Backpointers[k] = v
	}
	out.Backpointers[s] = prev
	return out
}

// SetCommit sets the COMMIT metadata bit in place. Metadata is the
// one field of an already-durable LogData that remains mutable post
// write (spec.md glossary, "Commit bit").
func (d *LogData) SetCommit(v bool) {
	if d.Metadata == nil {
		d.Metadata = make(map[MetaKey]any, 1)
	}
	d.Metadata[MetaCommit] = v
}

func (d LogData) Committed() bool {
	if d.Metadata == nil {
		return false
	}
	v, _ := d.Metadata[MetaCommit].(bool)
	return v
}
