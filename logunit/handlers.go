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
	"time"
)

// Status is the response-side outcome of a request (spec.md §4.F,
// §7). A static discriminated union rather than reflection-driven
// dispatch (spec.md §9 "replace with a static registration table").
type Status uint8

const (
	StatusOK Status = iota
	StatusOverwrite
	StatusReplexOverwrite
	StatusNoEntry
	StatusCorruption
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusOverwrite:
		return "OVERWRITE_ERROR"
	case StatusReplexOverwrite:
		return "REPLEX_OVERWRITE_ERROR"
	case StatusNoEntry:
		return "NOENTRY_ERROR"
	case StatusCorruption:
		return "DATA_CORRUPTION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ReplexTarget is one (stream, address) placement in a multi-stream
// write.
type ReplexTarget struct {
	Stream  StreamId
	Address uint64
}

// ReadResult is one position's outcome within a READ range response.
type ReadResult struct {
	Address uint64
	Type    EntryType
	Payload []byte
}

// Response is the uniform handler result. Err carries the underlying
// Go error (for logging/errors.As); Status is what §4.F's response
// column names.
type Response struct {
	Status  Status
	Err     error
	Reads   []ReadResult
	Written []ReplexTarget // targets durably written before a REPLEX failure (§7 partial-success contract)
}

// Handlers is the stateless spec.md §4.F translation layer: message
// kind in, (A-E) operation out. Epoch validation is assumed already
// done by a collaborator upstream of this layer.
type Handlers struct {
	u *LogUnit
}

func newHandlers(u *LogUnit) *Handlers { return &Handlers{u: u} }

func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrOverwrite):
		return StatusOverwrite
	case errors.Is(err, ErrReplexOverwrite):
		return StatusReplexOverwrite
	case errors.Is(err, ErrNoEntry):
		return StatusNoEntry
	case errors.As(err, new(*CorruptionError)):
		return StatusCorruption
	default:
		return StatusCorruption
	}
}

// WriteGlobal handles WRITE into the global log.
func (h *Handlers) WriteGlobal(addr uint64, payload []byte) Response {
	err := h.u.cache.Put(GlobalAddress(addr), NewDataEntry(payload))
	return Response{Status: statusFor(err), Err: err}
}

// WriteReplex handles a multi-stream WRITE (spec.md §4.F "REPLEX").
// Per OPEN QUESTIONS Q1, this is fail-fast/best-effort: targets are
// written in order, the first overwrite stops the request, and every
// target written before that point remains durable — there is no
// rollback. Response.Written lists exactly what succeeded so a caller
// can decide what, if anything, to undo at a higher layer.
func (h *Handlers) WriteReplex(targets []ReplexTarget, payload []byte) Response {
	written := make([]ReplexTarget, 0, len(targets))
	for _, t := range targets {
		prev := h.u.lastAddr.Get(t.Stream)
		entry := NewDataEntry(payload).WithStream(t.Stream, prev)
		err := h.u.cache.Put(StreamAddress(t.Stream, t.Address), entry)
		if err != nil {
			if errors.Is(err, ErrOverwrite) {
				err = ErrReplexOverwrite
			}
			return Response{Status: statusFor(err), Err: err, Written: written}
		}
		h.u.lastAddr.PutMax(t.Stream, t.Address)
		written = append(written, t)
	}
	return Response{Status: StatusOK, Written: written}
}

// Read handles READ over an inclusive [lo, hi] range on either the
// global log (global == true; stream is then ignored) or one stream's log.
func (h *Handlers) Read(global bool, stream StreamId, lo, hi uint64) Response {
	reads := make([]ReadResult, 0, hi-lo+1)
	for a := lo; a <= hi; a++ {
		var addr LogAddress
		if global {
			addr = GlobalAddress(a)
		} else {
			addr = StreamAddress(stream, a)
		}
		v, err := h.u.cache.Get(addr)
		if err != nil {
			return Response{Status: statusFor(err), Err: err, Reads: reads}
		}
		reads = append(reads, ReadResult{Address: a, Type: v.Type, Payload: v.Payload()})
		if a == ^uint64(0) {
			break // avoid overflow wraparound on hi == max uint64
		}
	}
	return Response{Status: StatusOK, Reads: reads}
}

// Commit handles COMMIT: set the COMMIT metadata bit on an already
// cached/durable entry, or NOENTRY if nothing is there.
func (h *Handlers) Commit(addr LogAddress) Response {
	v, err := h.u.cache.Get(addr)
	if err != nil {
		return Response{Status: statusFor(err), Err: err}
	}
	if v.Type == EMPTY {
		return Response{Status: StatusNoEntry, Err: ErrNoEntry}
	}
	v.SetCommit(true)
	// Re-insert so the committed flag is visible to subsequent
	// readers of the cache entry; COMMIT does not re-append to the
	// segment log (the commit bit is cache-resident metadata, spec.md
	// glossary "mutable post-write").
	h.u.cache.overwriteCached(addr, v)
	return Response{Status: StatusOK}
}

// FillHole handles FILL_HOLE: a HOLE write at addr, same overwrite
// semantics as a data write (spec.md P4).
func (h *Handlers) FillHole(addr LogAddress) Response {
	err := h.u.cache.Put(addr, HoleData())
	return Response{Status: statusFor(err), Err: err}
}

// Trim handles TRIM: advance a stream's trim mark.
func (h *Handlers) Trim(stream StreamId, prefix uint64) Response {
	h.u.trim.PutMax(stream, prefix)
	return Response{Status: StatusOK}
}

// ForceGC handles FORCE_GC: wake the GC loop immediately.
func (h *Handlers) ForceGC() Response {
	h.u.gc.ForceGC()
	return Response{Status: StatusOK}
}

// SetGCInterval handles GC_INTERVAL: update the sweep period.
func (h *Handlers) SetGCInterval(d time.Duration) Response {
	h.u.gc.SetInterval(d)
	return Response{Status: StatusOK}
}
