package assetregistry

import (
	"context"
)

// Service defines the asset registry operations
type Service interface {
	// Creation flows
	Register(ctx context.Context, req RegisterRequest) (*AssetView, error)
	UploadToGitHub(ctx context.Context, req UploadRequest) (*AssetView, error)
	DeleteFromGitHub(ctx context.Context, req DeleteRemoteRequest) (*DeleteResult, error)

	// Lookup
	GetBySlug(ctx context.Context, slug string) (*AssetView, error)
	GetByID(ctx context.Context, id string) (*AssetView, error)

	// Lifecycle
	Update(ctx context.Context, id string, patch Patch) (*AssetView, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	Restore(ctx context.Context, id string) (bool, error)

	// Listing
	ListRecent(ctx context.Context, q RecentQuery) ([]*AssetView, error)
	ListAll(ctx context.Context, filter Filter) ([]*AssetView, error)
	Search(ctx context.Context, q ListQuery) (*ListResult, error)
}
