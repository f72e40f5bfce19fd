package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	s3BackendName = "s3"

	// DefaultS3PartSize is the multipart chunk used for uploads of unknown length.
	DefaultS3PartSize uint64 = 16 << 20
	minS3PartSize     uint64 = 5 << 20
)

// S3Config configures the S3-compatible blob backend.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	Insecure       bool
	ForcePathStyle bool
	PartSize       uint64
	CreateBucket   bool
}

// S3 stores blob bytes as objects in an S3-compatible bucket. S3 only makes
// an object visible once PutObject completes; aborted uploads leave nothing.
type S3 struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3 builds a MinIO client for cfg. Static keys win; otherwise the
// standard AWS/MinIO environment and credential files are consulted.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	var creds *credentials.Credentials
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}
	options := &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	if cfg.PartSize == 0 {
		cfg.PartSize = DefaultS3PartSize
	}
	if cfg.PartSize < minS3PartSize {
		return nil, fmt.Errorf("s3: part size must be at least 5MiB")
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("s3: check bucket: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("s3: create bucket: %w", err)
			}
		}
	}
	return &S3{client: client, cfg: cfg}, nil
}

// Name returns the backend name recorded on descriptors.
func (s *S3) Name() string { return s3BackendName }

// Put uploads r with unknown length; MinIO splits it into parts as needed.
func (s *S3) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if r == nil {
		return 0, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	opts := minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    s.cfg.PartSize,
		// Over plain HTTP minio-go otherwise frames the body with
		// chunk signatures, which not every S3-compatible server strips.
		DisableContentSha256: s.cfg.Insecure,
	}
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, s.objectKey(key), ctxReader{ctx: ctx, r: r}, -1, opts)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Open returns the object body. The object is stat'ed first so a missing key
// is reported before any bytes are promised to the caller.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

// Delete removes the object. Missing objects are ignored.
func (s *S3) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.cfg.Bucket, s.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil && !isS3NotFound(err) {
		return err
	}
	return nil
}

func (s *S3) objectKey(key string) string {
	object := path.Join("blobs", key[:min(2, len(key))], key)
	if s.cfg.Prefix == "" {
		return object
	}
	return path.Join(s.cfg.Prefix, object)
}

func isS3NotFound(err error) bool {
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.StatusCode == http.StatusNotFound || errResp.Code == "NoSuchKey"
	}
	return false
}
