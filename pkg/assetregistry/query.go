package assetregistry

import (
	"sort"
	"strings"
	"time"
)

// Pagination bounds for List.
const (
	MinListLimit     = 1
	MaxListLimit     = 100
	DefaultListLimit = 20
)

// Sort keys accepted by List. Anything else falls back to DefaultSortField.
const (
	SortFieldCreatedAt = "created_at"
	SortFieldUpdatedAt = "updated_at"
	SortFieldLabel     = "label"
	SortFieldSlug      = "slug"
	SortFieldFilename  = "filename"
	SortFieldSize      = "size"

	DefaultSortField = SortFieldCreatedAt
)

var sortableFields = map[string]bool{
	SortFieldCreatedAt: true,
	SortFieldUpdatedAt: true,
	SortFieldLabel:     true,
	SortFieldSlug:      true,
	SortFieldFilename:  true,
	SortFieldSize:      true,
}

// IsSortableField reports whether field is on the sort allow-list.
func IsSortableField(field string) bool {
	return sortableFields[field]
}

// ClampLimit clamps limit into [MinListLimit, MaxListLimit].
func ClampLimit(limit int) int {
	if limit < MinListLimit {
		return MinListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// NormalizeListQuery applies the listing rules every store shares: the sort key
// falls back to created_at, direction defaults to desc, limit is clamped to
// [1,100] and offset to >= 0.
func NormalizeListQuery(q ListQuery) ListQuery {
	q.SortBy = strings.ToLower(strings.TrimSpace(q.SortBy))
	if !IsSortableField(q.SortBy) {
		q.SortBy = DefaultSortField
	}
	if SortDirection(strings.ToLower(string(q.SortDir))) == SortAsc {
		q.SortDir = SortAsc
	} else {
		q.SortDir = SortDesc
	}
	q.Limit = ClampLimit(q.Limit)
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Query = strings.TrimSpace(q.Query)
	q.Visibility = strings.TrimSpace(q.Visibility)
	return q
}

// MatchesFilter evaluates f against a in memory. Stores without a query
// language (jsonfile, kvtree) use it so that all backends agree.
func MatchesFilter(a *Asset, f Filter) bool {
	if a == nil {
		return false
	}
	if !f.IncludeDeleted && a.IsDeleted() {
		return false
	}
	if f.Disk != "" && a.Disk != f.Disk {
		return false
	}
	if f.Visibility != "" && a.Visibility != f.Visibility {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(a.Label), q) &&
			!strings.Contains(strings.ToLower(a.Slug), q) &&
			!strings.Contains(strings.ToLower(a.Filename), q) {
			return false
		}
	}
	return true
}

// SortAssets sorts in place by an allow-listed field. Ties are broken by id so
// that pagination is stable.
func SortAssets(items []*Asset, field string, dir SortDirection) {
	compare := func(a, b *Asset) int {
		switch field {
		case SortFieldUpdatedAt:
			return compareTime(a.UpdatedAt, b.UpdatedAt)
		case SortFieldLabel:
			return strings.Compare(strings.ToLower(a.Label), strings.ToLower(b.Label))
		case SortFieldSlug:
			return strings.Compare(a.Slug, b.Slug)
		case SortFieldFilename:
			return strings.Compare(strings.ToLower(a.Filename), strings.ToLower(b.Filename))
		case SortFieldSize:
			return compareSize(a.Size, b.Size)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := compare(items[i], items[j])
		if c == 0 {
			c = strings.Compare(items[i].ID, items[j].ID)
		}
		if dir == SortAsc {
			return c < 0
		}
		return c > 0
	})
}

// Paginate returns the [offset, offset+limit) window of items.
func Paginate(items []*Asset, limit, offset int) []*Asset {
	if offset >= len(items) {
		return []*Asset{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// ApplyPatch copies the non-nil fields of p onto a and stamps UpdatedAt.
// It reports whether the slug changed. The caller owns uniqueness checks.
func ApplyPatch(a *Asset, p Patch, now time.Time) (slugChanged bool) {
	if p.Label != nil {
		a.Label = *p.Label
	}
	if p.Slug != nil && *p.Slug != a.Slug {
		a.Slug = *p.Slug
		slugChanged = true
	}
	if p.Filename != nil {
		a.Filename = *p.Filename
	}
	if p.Mime != nil {
		a.Mime = StringPtr(*p.Mime)
	}
	if p.Size != nil {
		v := *p.Size
		a.Size = &v
	}
	if p.SHA256 != nil {
		a.SHA256 = StringPtr(strings.ToLower(*p.SHA256))
	}
	if p.VerifyHash != nil {
		a.VerifyHash = *p.VerifyHash
	}
	if p.Disposition != nil {
		a.Disposition = *p.Disposition
	}
	if p.Visibility != nil {
		a.Visibility = *p.Visibility
	}
	if p.GitHubURL != nil {
		a.GitHubURL = StringPtr(*p.GitHubURL)
	}
	if p.CDNURL != nil {
		a.CDNURL = StringPtr(*p.CDNURL)
	}
	ts := now.UTC()
	a.UpdatedAt = &ts
	return slugChanged
}

func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func compareSize(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}
