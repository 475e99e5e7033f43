// Package s3 is an S3-compatible implementation of ports.CacheStore,
// selected with CACHE_STORAGE_TYPE=s3. Object keys map one-to-one onto
// bucket keys under an optional prefix; the bucket has no directory
// hierarchy, so Rmdir is a no-op.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
)

// Config holds construction options for Store. Endpoint and
// ForcePathStyle exist for S3-compatible backends (MinIO, Localstack);
// leave them zero for real AWS.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	ForcePathStyle  bool

	// MaxRetries bounds the adapter's own retry loop for transient
	// read errors, on top of the SDK's internal retries. Default 3.
	MaxRetries int
}

// Store is an S3-backed object store for the cache tier.
type Store struct {
	client     *awss3.Client
	bucket     string
	prefix     string
	maxRetries int
}

// New builds the S3 client and verifies the configuration is complete.
// It does not touch the network; a missing bucket surfaces on first use.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (s *Store) key(objectKey string) string {
	if s.prefix == "" {
		return objectKey
	}
	return s.prefix + "/" + objectKey
}

func (s *Store) Write(ctx context.Context, objectKey string, data []byte) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(objectKey)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", objectKey, err)
	}
	return nil
}

// StreamWrite buffers the payload before the PutObject call: S3 needs
// the content length up front to sign the request, so an unbounded
// reader cannot be passed through directly.
func (s *Store) StreamWrite(ctx context.Context, objectKey string, r io.Reader) (int64, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return 0, fmt.Errorf("s3: buffering %s: %w", objectKey, err)
	}
	if err := s.Write(ctx, objectKey, buf.Bytes()); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Read(ctx context.Context, objectKey string) ([]byte, error) {
	rc, err := s.StreamRead(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", objectKey, err)
	}
	return data, nil
}

func (s *Store) StreamRead(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	return s.getObject(ctx, objectKey, "")
}

func (s *Store) RangeStreamRead(ctx context.Context, objectKey string, offset, length int64) (io.ReadCloser, error) {
	// S3 ranges are inclusive on both ends.
	rangeHdr := fmt.Sprintf("bytes=%d-", offset)
	if length >= 0 {
		rangeHdr = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}
	return s.getObject(ctx, objectKey, rangeHdr)
}

// getObject issues GetObject with the adapter's retry loop: transient
// errors back off and retry, not-found and invalid-range fail fast.
func (s *Store) getObject(ctx context.Context, objectKey, rangeHdr string) (io.ReadCloser, error) {
	input := &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(objectKey)),
	}
	if rangeHdr != "" {
		input.Range = aws.String(rangeHdr)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(attempt - 1)
			logger.Debug("s3 get retrying", "key", objectKey, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := s.client.GetObject(ctx, input)
		if err == nil {
			return out.Body, nil
		}
		if isNotFoundError(err) {
			return nil, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not found", objectKey)
		}
		if isInvalidRangeError(err) {
			return nil, apperr.New(apperr.ErrInvalidRange, "range offset out of bounds: "+objectKey)
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}
	return nil, fmt.Errorf("s3: get %s after %d attempts: %w", objectKey, s.maxRetries+1, lastErr)
}

func (s *Store) Delete(ctx context.Context, objectKey string) error {
	// DeleteObject on a missing key succeeds, matching the port's
	// best-effort delete semantics.
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(objectKey)),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", objectKey, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(objectKey)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3: head %s: %w", objectKey, err)
	}
	return true, nil
}

// Move is copy-then-delete; S3 has no rename primitive. A crash
// between the two calls leaves both keys present, which reconciliation
// treats the same as a duplicate cache entry.
func (s *Store) Move(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + s.key(srcKey)),
		Key:        aws.String(s.key(dstKey)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not found", srcKey)
		}
		return fmt.Errorf("s3: copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return s.Delete(ctx, srcKey)
}

func (s *Store) Size(ctx context.Context, objectKey string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(objectKey)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return 0, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "object not found", objectKey)
		}
		return 0, fmt.Errorf("s3: head %s: %w", objectKey, err)
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("s3: head %s: no content length", objectKey)
	}
	return *out.ContentLength, nil
}

// Rmdir is a no-op: S3 buckets are flat, prefixes disappear with their
// last object.
func (s *Store) Rmdir(ctx context.Context, prefix string) error {
	return nil
}

func retryBackoff(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * 500 * time.Millisecond
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

// isRetryableError reports whether the operation should be retried:
// network timeouts, throttling, and 5xx API errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown":
			return true
		case "InternalError", "ServiceUnavailable":
			return true
		case "NoSuchKey", "NotFound", "AccessDenied", "InvalidRange", "InvalidRequest":
			return false
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout")
}

// isNotFoundError reports whether the object doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return strings.Contains(err.Error(), "StatusCode: 404")
}

func isInvalidRangeError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "InvalidRange"
	}
	return false
}
