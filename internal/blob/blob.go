// Package blob is the only entry point to the artifact store drivers. Callers
// depend on blob.Store and pick a driver through Open or the constructors.
package blob

import (
	"context"
	"fmt"
	"os"

	"ephyscore/internal/blob/core"
	"ephyscore/internal/infra/blob/fs"
	memorystore "ephyscore/internal/infra/blob/memory"
	infraS3 "ephyscore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory

	ContentTypePNG  = core.ContentTypePNG
	ContentTypeJSON = core.ContentTypeJSON
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
	ErrInvalidKey  = core.ErrInvalidKey
)

// NewFilesystem returns a store rooted at root (default ./artifacts).
func NewFilesystem(root string) (Store, error) {
	s, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns a store backed by an S3-compatible bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open selects a store using environment variables.
//
//	EPHYSCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	EPHYSCORE_BLOB_FS_ROOT: directory when driver=fs (default ./artifacts)
//	EPHYSCORE_BLOB_S3_*: see the s3 driver
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv("EPHYSCORE_BLOB_DRIVER"))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("EPHYSCORE_BLOB_FS_ROOT"))
	case DriverS3:
		cfg, err := infraS3.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return NewS3(ctx, cfg)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
