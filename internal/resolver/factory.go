package resolver

import (
	"context"
	"fmt"

	"retain/internal/archive"
	"retain/internal/config"
)

// NewResolverFromConfig creates a Resolver based on the storage config type.
func NewResolverFromConfig(ctx context.Context, cfg config.StorageConfig) (archive.Resolver, error) {
	switch cfg.Type {
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem storage requires root to be set")
		}
		return NewFilesystemResolver(cfg.Root)
	case "s3":
		return NewS3Resolver(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
