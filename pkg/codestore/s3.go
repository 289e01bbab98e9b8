package codestore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/panbanda/klone/pkg/models"
)

// S3Config configures the S3 store.
type S3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// S3 serves entities uploaded as objects keyed <mode>/<id>/<path>. An entity
// with no objects yet is reported as pending.
type S3 struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

// NewS3 creates an S3-backed store.
func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3{client: client, bucket: bucket, region: region}, nil
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if !exists {
			s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		}
	})
	return s.initErr
}

func entityPrefix(ref models.EntityRef) string {
	return string(ref.Mode) + "/" + strconv.Itoa(ref.ID) + "/"
}

// List implements Store.
func (s *S3) List(ctx context.Context, ref models.EntityRef) (Listing, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return Listing{}, fmt.Errorf("ensure bucket: %w", err)
	}

	prefix := entityPrefix(ref)
	var paths []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return Listing{}, obj.Err
		}
		if obj.Key == "" || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		paths = append(paths, strings.TrimPrefix(obj.Key, prefix))
	}
	if len(paths) == 0 {
		return Listing{Status: StatusPending}, nil
	}
	sort.Strings(paths)
	return Listing{Status: StatusDone, Root: TreeFromPaths(paths)}, nil
}

// Read implements Store.
func (s *S3) Read(ctx context.Context, ref models.EntityRef, path string) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, entityPrefix(ref)+clean, minio.GetObjectOptions{})
	if err != nil {
		return "", err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", err
	}
	return string(data), nil
}
