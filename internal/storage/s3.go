package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ ObjectStore = (*S3Store)(nil)

// S3Config selects the bucket and, for S3-compatible services, a custom endpoint.
type S3Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	Prefix         string
	ForcePathStyle bool
	ServerSideKMS  bool
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// memorySpoolLimit is the largest non-seekable body buffered in memory before
// Put spools to a temp file instead.
const memorySpoolLimit = 4 << 20

// S3Store persists evidence in an S3 bucket.
type S3Store struct {
	client     S3API
	cfg        S3Config
	spoolLimit int64
}

// NewS3Client loads the default AWS credential chain and builds an S3 client.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// NewS3Store wraps client for bucket operations.
func NewS3Store(client S3API, cfg S3Config) (*S3Store, error) {
	if client == nil {
		return nil, errors.New("storage: s3 client is required")
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	cfg.Prefix = strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	return &S3Store{client: client, cfg: cfg, spoolLimit: memorySpoolLimit}, nil
}

// Put uploads body under key. The SDK needs a seekable body to sign and
// retry requests over plain HTTP endpoints, so other readers are spooled
// first and the declared size is checked against what was read.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	seekable, length, release, err := s.spool(body, size)
	if err != nil {
		return fmt.Errorf("storage: s3 put %s: %w", key, err)
	}
	defer release()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          seekable,
		ContentLength: aws.Int64(length),
		ContentType:   aws.String(contentType),
	}
	if s.cfg.ServerSideKMS {
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("storage: s3 put %s: %w", key, err)
	}
	return nil
}

// Delete removes key from the bucket.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("storage: s3 delete %s: %w", key, err)
	}
	return nil
}

// spool returns body as an io.ReadSeeker with its length. Bodies that can
// already seek are measured in place; small ones are buffered in memory and
// the rest go to a temp file removed by release.
func (s *S3Store) spool(body io.Reader, size int64) (io.ReadSeeker, int64, func(), error) {
	noop := func() {}

	if rs, ok := body.(io.ReadSeeker); ok {
		start, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, noop, err
		}
		end, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, noop, err
		}
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return nil, 0, noop, err
		}
		length := end - start
		if size >= 0 && length != size {
			return nil, 0, noop, fmt.Errorf("body is %d bytes, declared %d", length, size)
		}
		return rs, length, noop, nil
	}

	if size >= 0 && size <= s.spoolLimit {
		buf := bytes.NewBuffer(make([]byte, 0, size))
		n, err := io.Copy(buf, io.LimitReader(body, size+1))
		if err != nil {
			return nil, 0, noop, err
		}
		if n != size {
			return nil, 0, noop, fmt.Errorf("body is %d bytes, declared %d", n, size)
		}
		return bytes.NewReader(buf.Bytes()), n, noop, nil
	}

	tmp, err := os.CreateTemp("", "blotter-s3-*")
	if err != nil {
		return nil, 0, noop, err
	}
	release := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	n, err := io.Copy(tmp, body)
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("body is %d bytes, declared %d", n, size)
	}
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		release()
		return nil, 0, noop, err
	}
	return tmp, n, release, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return s.cfg.Prefix + "/" + key
}
