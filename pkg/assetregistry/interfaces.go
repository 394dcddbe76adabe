package assetregistry

import (
	"context"
)

// Repository defines the interface for asset persistence.
//
// All implementations share the same semantics: slugs are unique across every
// stored asset (soft-deleted assets keep their slug), FindBySlug hides
// soft-deleted assets, GetByID does not.
type Repository interface {
	// Insert stores a new asset. It returns ErrSlugConflict, leaving nothing
	// persisted, when the slug is already claimed.
	Insert(ctx context.Context, asset *Asset) error

	// FindBySlug returns the active asset with slug or ErrAssetNotFound.
	FindBySlug(ctx context.Context, slug string) (*Asset, error)

	// SlugTaken reports whether any stored asset, including soft-deleted
	// ones, holds slug.
	SlugTaken(ctx context.Context, slug string) (bool, error)

	// GetByID returns the asset regardless of soft-delete state or ErrAssetNotFound.
	GetByID(ctx context.Context, id string) (*Asset, error)

	// Update applies an allow-listed patch and refreshes updated_at.
	Update(ctx context.Context, id string, patch Patch) (*Asset, error)

	// SoftDelete sets deleted_at. It reports false when the asset is missing or
	// already deleted.
	SoftDelete(ctx context.Context, id string) (bool, error)

	// Restore clears deleted_at. It reports false when the asset is missing or
	// not deleted.
	Restore(ctx context.Context, id string) (bool, error)

	// List returns one page of matching assets and the total number of matches.
	List(ctx context.Context, query ListQuery) ([]*Asset, int, error)

	// Count returns the number of assets matching filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Close releases the underlying connection or file handles.
	Close() error
}

// ContentHost is the remote source-hosting API used for the upload flow.
type ContentHost interface {
	GetRepositoryInfo(ctx context.Context, owner, repo string) (*RepositoryInfo, error)
	ResolveBranch(ctx context.Context, owner, repo, requested string) (string, error)
	UploadContent(ctx context.Context, params UploadParams) (*UploadResult, error)
	DeleteContent(ctx context.Context, params DeleteParams) (*DeleteResult, error)
}

// URLResolver maps an asset to an externally fetchable URL. It must be pure.
type URLResolver interface {
	PublicURL(asset *Asset) string
	// BlobURL returns the repository web link for a github-hosted file.
	BlobURL(owner, repo, branch, path string) string
	// CDNURL returns the CDN link for a github-hosted file.
	CDNURL(owner, repo, branch, path string) string
}

// RepositoryInfo describes a hosted repository.
type RepositoryInfo struct {
	Owner         string
	Name          string
	DefaultBranch string
	IsEmpty       bool
}

// UploadParams contains parameters for creating or updating a repository file
type UploadParams struct {
	Owner   string
	Repo    string
	Branch  string
	Path    string
	Content []byte
	Message string
}

// UploadResult describes the file written by UploadContent.
type UploadResult struct {
	URL       string `json:"url"`
	SHA       string `json:"sha"`
	Branch    string `json:"branch"`
	Path      string `json:"path"`
	CommitSHA string `json:"commit_sha"`
	Created   bool   `json:"created"`
}

// DeleteParams contains parameters for deleting a repository file
type DeleteParams struct {
	Owner   string
	Repo    string
	Branch  string
	Path    string
	Message string
}

// DeleteResult describes the commit produced by DeleteContent.
type DeleteResult struct {
	Path      string `json:"path"`
	Branch    string `json:"branch"`
	CommitSHA string `json:"commit_sha"`
}
