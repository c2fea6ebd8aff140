package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store keeps copies of files off the host, e.g. database snapshots.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
	Prefix    string `env:"MINIO_PREFIX"` // object key prefix, e.g. "backups/"
}

func (c MinioConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// MinioStore is an S3-compatible Store. The bucket is created on first write.
type MinioStore struct {
	cfg    MinioConfig
	cli    *minio.Client
	bucket sync.Once
	errB   error
}

func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio: endpoint and bucket are required")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{cfg: cfg, cli: cli}, nil
}

func (m *MinioStore) key(k string) string {
	if m.cfg.Prefix == "" {
		return k
	}
	return strings.TrimRight(m.cfg.Prefix, "/") + "/" + strings.TrimLeft(k, "/")
}

func (m *MinioStore) ensureBucket(ctx context.Context) error {
	m.bucket.Do(func() {
		exists, err := m.cli.BucketExists(ctx, m.cfg.Bucket)
		if err != nil {
			m.errB = err
			return
		}
		if !exists {
			m.errB = m.cli.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{})
		}
	})
	return m.errB
}

func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("minio bucket %s: %w", m.cfg.Bucket, err)
	}
	_, err := m.cli.PutObject(ctx, m.cfg.Bucket, m.key(key), r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.cli.StatObject(ctx, m.cfg.Bucket, m.key(key), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	return m.cli.RemoveObject(ctx, m.cfg.Bucket, m.key(key), minio.RemoveObjectOptions{})
}
