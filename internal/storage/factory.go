package storage

import (
	"fmt"
	"strings"
)

// StorageType selects an ObjectStorage backend.
type StorageType string

const (
	StorageTypeLocal        StorageType = "local"
	StorageTypeMinIO        StorageType = "minio"
	StorageTypeR2           StorageType = "r2"
	StorageTypeS3           StorageType = "s3"
	StorageTypeS3Compatible StorageType = "s3compatible"
)

// Config holds the settings of every backend; fields unused by the selected type are ignored.
type Config struct {
	Type      StorageType
	LocalPath string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	PublicURL string
}

// NewStorage creates an ObjectStorage instance based on the configuration.
// An empty type with no endpoint selects local storage; with an endpoint the
// S3 flavour is detected from the host.
// Parameters:
//   - cfg: storage configuration.
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the client cannot be created.
func NewStorage(cfg *Config) (ObjectStorage, error) {
	storeType := cfg.Type
	if storeType == "" {
		if cfg.Endpoint == "" {
			storeType = StorageTypeLocal
		} else {
			storeType = detectStorageType(cfg.Endpoint)
		}
	}

	switch storeType {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeMinIO:
		return NewMinIOStorage(cfg)
	case StorageTypeR2, StorageTypeS3, StorageTypeS3Compatible:
		s3cfg := *cfg
		s3cfg.Type = storeType
		return NewS3Storage(&s3cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", storeType)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
