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
	"fmt"
	"os"
)

// Logger is the ambient logging seam. The default implementation
// prints to stdout/stderr the same way the rest of this codebase's
// ancestry does (plain fmt.Printf, no structured logging framework);
// callers embedding this module in something with real log plumbing
// can supply their own.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type fmtLogger struct{}

// DefaultLogger is a plain fmt-based Logger. Errors go to stderr.
func DefaultLogger() Logger { return fmtLogger{} }

func (fmtLogger) Infof(format string, args ...any) {
	fmt.Printf("[logunit] "+format+"\n", args...)
}

func (fmtLogger) Warnf(format string, args ...any) {
	fmt.Printf("[logunit] WARNING: "+format+"\n", args...)
}

func (fmtLogger) Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[logunit] ERROR: "+format+"\n", args...)
}
