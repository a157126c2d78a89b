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
	"fmt"
)

// Sentinel errors for the taxonomy in spec.md §7. Use errors.Is against
// these; CorruptionError additionally carries detail via errors.As.
var (
	ErrOverwrite       = errors.New("logunit: address already durable")
	ErrReplexOverwrite = errors.New("logunit: replex write found an occupied target")
	ErrNoEntry         = errors.New("logunit: no entry at address")
)

// CorruptionError is returned when a segment record fails structural
// or checksum validation. Fatal for the read that triggered it; the
// segment is marked read-only (spec.md §7).
type CorruptionError struct {
	Path   string
	Offset int64
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("logunit: corruption in %s at offset %d: %s", e.Path, e.Offset, e.Reason)
}

func (e *CorruptionError) Is(target error) bool {
	_, ok := target.(*CorruptionError)
	return ok
}
