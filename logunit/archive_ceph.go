//go:build ceph

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
	"context"
	"encoding/json"
	"path"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

func init() {
	BackendRegistry["ceph"] = func(raw json.RawMessage) (ArchiveBackend, error) {
		var cfg CephConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return NewCephArchive(cfg), nil
	}
}

// CephConfig names an on-prem RADOS archive target.
type CephConfig struct {
	UserName    string `json:"username"`
	ClusterName string `json:"cluster"`
	ConfFile    string `json:"conf_file"`
	Pool        string `json:"pool"`
	Prefix      string `json:"prefix"`
}

// CephArchive is an ArchiveBackend writing whole RADOS objects. Like
// S3Archive, it only ever receives already-closed, already-LZ4-framed
// segment bytes — no append semantics are needed.
type CephArchive struct {
	cfg CephConfig

	mu     sync.Mutex
	conn   *rados.Conn
	ioctx  *rados.IOContext
	opened bool
}

func NewCephArchive(cfg CephConfig) *CephArchive {
	return &CephArchive{cfg: cfg}
}

func (a *CephArchive) ensureOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	conn, err := rados.NewConnWithClusterAndUser(a.cfg.ClusterName, a.cfg.UserName)
	if err != nil {
		return err
	}
	if a.cfg.ConfFile != "" {
		if err := conn.ReadConfigFile(a.cfg.ConfFile); err != nil {
			return err
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		return err
	}
	ioctx, err := conn.OpenIOContext(a.cfg.Pool)
	if err != nil {
		conn.Shutdown()
		return err
	}

	a.conn = conn
	a.ioctx = ioctx
	a.opened = true
	return nil
}

func (a *CephArchive) obj(key string) string {
	return path.Join(a.cfg.Prefix, key)
}

func (a *CephArchive) Put(ctx context.Context, key string, data []byte) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	return a.ioctx.WriteFull(a.obj(key), data)
}

func (a *CephArchive) Get(ctx context.Context, key string) ([]byte, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	obj := a.obj(key)
	stat, err := a.ioctx.Stat(obj)
	if err != nil {
		return nil, err
	}
	data := make([]byte, stat.Size)
	n, err := a.ioctx.Read(obj, data, 0)
	if err != nil {
		return nil, err
	}
	return data[:n], nil
}
