package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charlesng35/blotter/internal/storage"
)

// S3Config converts the S3 section into the storage package representation.
func (c StorageConfig) S3Config() storage.S3Config {
	return storage.S3Config{
		Bucket:         strings.TrimSpace(c.S3.Bucket),
		Region:         strings.TrimSpace(c.S3.Region),
		Endpoint:       strings.TrimSpace(c.S3.Endpoint),
		Prefix:         strings.Trim(strings.TrimSpace(c.S3.Prefix), "/"),
		ForcePathStyle: c.S3.ForcePathStyle,
		ServerSideKMS:  c.S3.ServerSideKMS,
	}
}

// OpenObjectStore builds the evidence object store selected by Driver.
func (c StorageConfig) OpenObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "filesystem":
		store, err := storage.NewFilesystemStore(strings.TrimSpace(c.Filesystem.Root))
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		s3cfg := c.S3Config()
		client, err := storage.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		store, err := storage.NewS3Store(client, s3cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", c.Driver)
	}
}
