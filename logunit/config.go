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
	"time"

	units "github.com/docker/go-units"
)

// defaultSegmentSize is the default address window per segment file
// (spec.md §3, "Segment File").
const defaultSegmentSize = 10000

// defaultFileSizeLimit is the default extent/mapping window per
// segment file (spec.md §4.A): INT_MAX >> 4 bytes, just under 128 MiB.
const defaultFileSizeLimit = (1<<31 - 1) >> 4

// quickcheckFileSizeLimit is used when QuickcheckTestMode is set
// (spec.md §4.A, "~4 MB").
const quickcheckFileSizeLimit = 4 << 20

// Config is the typed, immutable-after-construction configuration
// value spec.md §9 calls for. Built once via NewConfig and passed
// explicitly to NewLogUnit; nothing in this package consults a mutable
// global settings object.
type Config struct {
	// Memory, if true, uses an in-memory segment backend: no files,
	// data lost on exit.
	Memory bool
	// LogPath is the base directory for on-disk logs ("log/" for
	// global, "log/<stream-uuid>/" per stream). Ignored if Memory.
	LogPath string
	// NoVerify skips per-record checksum verification on read.
	NoVerify bool
	// MaxCacheBytes bounds the write-through cache's total weight.
	MaxCacheBytes int64
	// SegmentFileSizeLimit bounds how large one segment file may grow.
	// An append that would take a file past it fails with an error; it
	// is not redirected to another segment.
	SegmentFileSizeLimit int64
	// SegmentSize is the number of addresses per segment file.
	SegmentSize uint64
	// GCInterval is the background sweep period.
	GCInterval time.Duration
	// Archive is an optional cold-storage backend for fully-trimmed
	// segments (DOMAIN STACK: cold archival tiering). Nil disables it.
	Archive ArchiveBackend
}

// DefaultConfig returns the spec.md-documented defaults.
func DefaultConfig() Config {
	return Config{
		Memory:               false,
		LogPath:              "data/log",
		NoVerify:             false,
		MaxCacheBytes:        256 << 20,
		SegmentFileSizeLimit: defaultFileSizeLimit,
		SegmentSize:          defaultSegmentSize,
		GCInterval:           60 * time.Second,
	}
}

// Option mutates a Config under construction. WithMaxCache and
// WithSegmentFileSizeLimit accept the same human-readable byte-size
// strings operators already type for Docker resource limits
// ("512MiB", "4MB", "1g") via github.com/docker/go-units.
type Option func(*Config) error

func WithMemory() Option {
	return func(c *Config) error { c.Memory = true; return nil }
}

func WithLogPath(path string) Option {
	return func(c *Config) error { c.LogPath = path; return nil }
}

func WithNoVerify() Option {
	return func(c *Config) error { c.NoVerify = true; return nil }
}

func WithMaxCache(size string) Option {
	return func(c *Config) error {
		n, err := units.RAMInBytes(size)
		if err != nil {
			return err
		}
		c.MaxCacheBytes = n
		return nil
	}
}

func WithMaxCacheBytes(n int64) Option {
	return func(c *Config) error { c.MaxCacheBytes = n; return nil }
}

func WithQuickcheckTestMode() Option {
	return func(c *Config) error {
		c.SegmentFileSizeLimit = quickcheckFileSizeLimit
		return nil
	}
}

func WithSegmentFileSizeLimit(size string) Option {
	return func(c *Config) error {
		n, err := units.RAMInBytes(size)
		if err != nil {
			return err
		}
		c.SegmentFileSizeLimit = n
		return nil
	}
}

func WithGCInterval(d time.Duration) Option {
	return func(c *Config) error { c.GCInterval = d; return nil }
}

func WithArchive(backend ArchiveBackend) Option {
	return func(c *Config) error { c.Archive = backend; return nil }
}

// NewConfig applies opts over DefaultConfig.
func NewConfig(opts ...Option) (Config, error) {
	c := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return Config{}, err
		}
	}
	return c, nil
}
