package assetregistry

import (
	"time"
)

// Disk identifies where an asset's bytes live.
type Disk string

// Disk constants (typed).
const (
	DiskRemote Disk = "remote"
	DiskLocal  Disk = "local"
	DiskS3     Disk = "s3"
	DiskGitHub Disk = "github"
)

// IsValid reports whether d is a known disk.
func (d Disk) IsValid() bool {
	switch d {
	case DiskRemote, DiskLocal, DiskS3, DiskGitHub:
		return true
	}
	return false
}

// Disposition hints the Content-Disposition a consumer should use.
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// IsValid reports whether d is a known disposition.
func (d Disposition) IsValid() bool {
	return d == DispositionInline || d == DispositionAttachment
}

// DefaultVisibility is applied when a caller does not supply one.
const DefaultVisibility = "public"

// Asset is a registered reference to a binary file living on some external disk.
//
// Repo and Branch are only set for github assets. DeletedAt marks a soft delete;
// a soft-deleted asset keeps its slug reserved.
type Asset struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Slug        string      `json:"slug"`
	Filename    string      `json:"filename"`
	Disk        Disk        `json:"disk"`
	Path        string      `json:"path"`
	Repo        *string     `json:"repo,omitempty"`
	Branch      *string     `json:"branch,omitempty"`
	Mime        *string     `json:"mime,omitempty"`
	Size        *int64      `json:"size,omitempty"`
	SHA256      *string     `json:"sha256,omitempty"`
	VerifyHash  bool        `json:"verify_hash"`
	Disposition Disposition `json:"disposition"`
	Visibility  string      `json:"visibility"`
	GitHubURL   *string     `json:"github_url,omitempty"`
	CDNURL      *string     `json:"cdn_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the asset is soft-deleted.
func (a *Asset) IsDeleted() bool {
	return a.DeletedAt != nil
}

// Clone returns a deep copy so stores can hand out values without sharing pointers.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.Repo = cloneString(a.Repo)
	c.Branch = cloneString(a.Branch)
	c.Mime = cloneString(a.Mime)
	c.SHA256 = cloneString(a.SHA256)
	c.GitHubURL = cloneString(a.GitHubURL)
	c.CDNURL = cloneString(a.CDNURL)
	if a.Size != nil {
		v := *a.Size
		c.Size = &v
	}
	c.UpdatedAt = cloneTime(a.UpdatedAt)
	c.DeletedAt = cloneTime(a.DeletedAt)
	return &c
}

// Patch is the allow-listed set of mutable fields. Nil means untouched.
type Patch struct {
	Label       *string      `json:"label,omitempty"`
	Slug        *string      `json:"slug,omitempty"`
	Filename    *string      `json:"filename,omitempty"`
	Mime        *string      `json:"mime,omitempty"`
	Size        *int64       `json:"size,omitempty"`
	SHA256      *string      `json:"sha256,omitempty"`
	VerifyHash  *bool        `json:"verify_hash,omitempty"`
	Disposition *Disposition `json:"disposition,omitempty"`
	Visibility  *string      `json:"visibility,omitempty"`
	GitHubURL   *string      `json:"github_url,omitempty"`
	CDNURL      *string      `json:"cdn_url,omitempty"`
}

// Filter selects assets for List and Count. All set conditions must match.
type Filter struct {
	// Query is a case-insensitive substring matched against label, slug and filename.
	Query          string `json:"q,omitempty"`
	Disk           Disk   `json:"disk,omitempty"`
	Visibility     string `json:"visibility,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ListQuery is a filtered, sorted and paginated listing request.
type ListQuery struct {
	Filter
	SortBy  string        `json:"sort,omitempty"`
	SortDir SortDirection `json:"dir,omitempty"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// AssetView is an asset together with its resolved public URL.
type AssetView struct {
	Asset     *Asset `json:"asset"`
	PublicURL string `json:"public_url"`
}

// ListResult is one page of a listing.
type ListResult struct {
	Items  []*AssetView `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
