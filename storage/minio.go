package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"transitions-api-go/logcolors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// MinioConfig holds the connection settings for an S3-compatible bucket
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps artifacts as objects in a bucket. The bucket is created on first write.
type MinioStore struct {
	client *minio.Client
	bucket string

	bucketMu    sync.Mutex
	bucketReady bool
}

// NewMinioStore creates a client for the bucket. No request is made until first use.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()

	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
		log.Infof("%s Created bucket %s", logcolors.LogStorage, s.bucket)
	}
	s.bucketReady = true
	return nil
}

func (s *MinioStore) Exists(ctx context.Context, id string) bool {
	_, err := s.client.StatObject(ctx, s.bucket, ObjectName(id), minio.StatObjectOptions{})
	if err == nil {
		return true
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		log.Warnf("%s Stat %s failed, treating as missing: %v", logcolors.LogStorage, ObjectName(id), err)
	}
	return false
}

func (s *MinioStore) Write(ctx context.Context, id string, data []byte) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	name := ObjectName(id)
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "audio/wav"})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, name), nil
}

func (s *MinioStore) Read(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ObjectName(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", ObjectName(id), err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", ObjectName(id), err)
	}
	return data, nil
}

func (s *MinioStore) Delete(ctx context.Context, id string) {
	if err := s.client.RemoveObject(ctx, s.bucket, ObjectName(id), minio.RemoveObjectOptions{}); err != nil {
		log.Warnf("%s Failed to remove %s: %v", logcolors.LogStorage, ObjectName(id), err)
	}
}
