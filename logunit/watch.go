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
	"encoding/json"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	units "github.com/docker/go-units"
)

// reloadable is the subset of a config file that is safe to apply to
// a running LogUnit without a restart: gc-interval and max-cache. See
// SPEC_FULL.md "Configuration" — everything else (log-path, memory,
// segment size) is fixed for the process lifetime.
type reloadable struct {
	GCIntervalMS int    `json:"gc-interval"`
	MaxCache     string `json:"max-cache"`
}

// ConfigWatcher watches path for writes and pushes gc-interval /
// max-cache updates into the running LogUnit. Closing it stops the
// watch.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchConfigFile starts watching path for changes, applying any
// gc-interval / max-cache update it finds to u. Read and parse errors
// are logged and otherwise ignored, and missing fields are skipped
// silently — a bad edit to the config file must not crash a running
// log unit.
func WatchConfigFile(path string, u *LogUnit) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}

	cw := &ConfigWatcher{watcher: w, done: make(chan struct{})}
	go cw.run(path, u)
	return cw, nil
}

func (cw *ConfigWatcher) run(path string, u *LogUnit) {
	for {
		select {
		case <-cw.done:
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cw.apply(path, u)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			u.log.Warnf("config watch error: %v", err)
		}
	}
}

func (cw *ConfigWatcher) apply(path string, u *LogUnit) {
	raw, err := os.ReadFile(path)
	if err != nil {
		u.log.Warnf("config reload: %v", err)
		return
	}
	var r reloadable
	if err := json.Unmarshal(raw, &r); err != nil {
		u.log.Warnf("config reload: invalid json: %v", err)
		return
	}
	if r.GCIntervalMS > 0 {
		d := time.Duration(r.GCIntervalMS) * time.Millisecond
		u.gc.SetInterval(d)
		u.log.Infof("config reload: gc-interval -> %s", d)
	}
	if r.MaxCache != "" {
		if n, err := units.RAMInBytes(r.MaxCache); err == nil {
			u.cache.maxWeight.Store(n)
			u.log.Infof("config reload: max-cache -> %d bytes", n)
		} else {
			u.log.Warnf("config reload: invalid max-cache %q: %v", r.MaxCache, err)
		}
	}
}

func (cw *ConfigWatcher) Close() error {
	close(cw.done)
	return cw.watcher.Close()
}
