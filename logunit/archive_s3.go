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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func init() {
	BackendRegistry["s3"] = func(raw json.RawMessage) (ArchiveBackend, error) {
		var cfg S3Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return NewS3Archive(cfg), nil
	}
}

// S3Config names an S3 (or S3-compatible, e.g. MinIO) archive target.
type S3Config struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	ForcePathStyle  bool   `json:"force_path_style"`
}

// S3Archive is an ArchiveBackend storing archived segment bytes as
// whole objects keyed by prefix/<segment key>. S3 has no append, which
// is irrelevant here — archived segments are already closed and
// immutable by the time they reach this backend.
type S3Archive struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func NewS3Archive(cfg S3Config) *S3Archive {
	return &S3Archive{cfg: cfg}
}

func (a *S3Archive) ensureOpen(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	var opts []func(*config.LoadOptions) error
	if a.cfg.Region != "" {
		opts = append(opts, config.WithRegion(a.cfg.Region))
	}
	if a.cfg.AccessKeyID != "" && a.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cfg.AccessKeyID, a.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return err
	}

	var s3Opts []func(*s3.Options)
	if a.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(a.cfg.Endpoint) })
	}
	if a.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	a.client = s3.NewFromConfig(awsCfg, s3Opts...)
	a.opened = true
	return nil
}

func (a *S3Archive) key(name string) string {
	return strings.TrimSuffix(a.cfg.Prefix, "/") + "/" + name
}

func (a *S3Archive) Put(ctx context.Context, key string, data []byte) error {
	if err := a.ensureOpen(ctx); err != nil {
		return err
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(a.key(key)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (a *S3Archive) Get(ctx context.Context, key string) ([]byte, error) {
	if err := a.ensureOpen(ctx); err != nil {
		return nil, err
	}
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(a.key(key)),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
