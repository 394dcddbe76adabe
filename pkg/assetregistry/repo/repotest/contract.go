// Package repotest holds the behaviour every assetregistry.Repository must
// share. Backends run it from their own tests.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/asset-registry/pkg/assetregistry"
)

// Factory returns a fresh, empty repository for one subtest.
type Factory func(t *testing.T) assetregistry.Repository

// NewAsset builds a valid asset. created is truncated to microseconds so that
// every backend stores it without loss.
func NewAsset(label, slug string, disk assetregistry.Disk, created time.Time) *assetregistry.Asset {
	a := &assetregistry.Asset{
		ID:          uuid.NewString(),
		Label:       label,
		Slug:        slug,
		Filename:    slug + ".png",
		Disk:        disk,
		Path:        "https://example.com/" + slug + ".png",
		Mime:        assetregistry.StringPtr("image/png"),
		Disposition: assetregistry.DispositionInline,
		Visibility:  assetregistry.DefaultVisibility,
		CreatedAt:   created.UTC().Truncate(time.Microsecond),
	}
	if disk == assetregistry.DiskGitHub {
		a.Path = "img/" + slug + ".png"
		a.Repo = assetregistry.StringPtr("acme/assets")
		a.Branch = assetregistry.StringPtr("main")
	}
	return a
}

// Run executes the contract suite.
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("InsertAndFindBySlug", func(t *testing.T) {
		repo := newRepo(t)
		size := int64(2048)
		in := NewAsset("Company Logo", "company-logo", assetregistry.DiskRemote, base)
		in.Size = &size
		in.SHA256 = assetregistry.StringPtr(assetregistry.SHA256Hex([]byte("logo")))
		in.VerifyHash = true
		require.NoError(t, repo.Insert(ctx, in))

		got, err := repo.FindBySlug(ctx, "company-logo")
		require.NoError(t, err)
		assert.Equal(t, in.ID, got.ID)
		assert.Equal(t, in.Label, got.Label)
		assert.Equal(t, in.Filename, got.Filename)
		assert.Equal(t, in.Disk, got.Disk)
		assert.Equal(t, in.Path, got.Path)
		assert.Equal(t, in.Mime, got.Mime)
		assert.Equal(t, in.Size, got.Size)
		assert.Equal(t, in.SHA256, got.SHA256)
		assert.True(t, got.VerifyHash)
		assert.Equal(t, in.Disposition, got.Disposition)
		assert.Equal(t, in.Visibility, got.Visibility)
		assert.True(t, in.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.DeletedAt)

		_, err = repo.FindBySlug(ctx, "missing")
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)
		_, err = repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)
	})

	t.Run("GitHubFieldsRoundTrip", func(t *testing.T) {
		repo := newRepo(t)
		in := NewAsset("Banner", "banner", assetregistry.DiskGitHub, base)
		in.GitHubURL = assetregistry.StringPtr("https://github.com/acme/assets/blob/main/img/banner.png")
		in.CDNURL = assetregistry.StringPtr("https://cdn.jsdelivr.net/gh/acme/assets@main/img/banner.png")
		require.NoError(t, repo.Insert(ctx, in))

		got, err := repo.GetByID(ctx, in.ID)
		require.NoError(t, err)
		assert.Equal(t, "acme/assets", assetregistry.Deref(got.Repo))
		assert.Equal(t, "main", assetregistry.Deref(got.Branch))
		assert.Equal(t, in.GitHubURL, got.GitHubURL)
		assert.Equal(t, in.CDNURL, got.CDNURL)
	})

	t.Run("SlugConflictLeavesNoPartialRecord", func(t *testing.T) {
		repo := newRepo(t)
		first := NewAsset("One", "shared", assetregistry.DiskRemote, base)
		require.NoError(t, repo.Insert(ctx, first))

		second := NewAsset("Two", "shared", assetregistry.DiskLocal, base.Add(time.Minute))
		err := repo.Insert(ctx, second)
		assert.ErrorIs(t, err, assetregistry.ErrSlugConflict)

		_, err = repo.GetByID(ctx, second.ID)
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)
		n, err := repo.Count(ctx, assetregistry.Filter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := repo.FindBySlug(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("SoftDeleteAndRestore", func(t *testing.T) {
		repo := newRepo(t)
		a := NewAsset("Icon", "icon", assetregistry.DiskRemote, base)
		require.NoError(t, repo.Insert(ctx, a))

		ok, err := repo.SoftDelete(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SoftDelete(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, ok, "second delete is a no-op")

		_, err = repo.FindBySlug(ctx, "icon")
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)

		byID, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.NotNil(t, byID.DeletedAt)

		n, err := repo.Count(ctx, assetregistry.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		n, err = repo.Count(ctx, assetregistry.Filter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ok, err = repo.Restore(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.Restore(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.FindBySlug(ctx, "icon")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, a.Path, got.Path)
		assert.True(t, a.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.DeletedAt)

		ok, err = repo.SoftDelete(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DeletedSlugStaysReserved", func(t *testing.T) {
		repo := newRepo(t)
		a := NewAsset("Old", "reserved", assetregistry.DiskRemote, base)
		require.NoError(t, repo.Insert(ctx, a))
		_, err := repo.SoftDelete(ctx, a.ID)
		require.NoError(t, err)

		err = repo.Insert(ctx, NewAsset("New", "reserved", assetregistry.DiskRemote, base))
		assert.ErrorIs(t, err, assetregistry.ErrSlugConflict)

		taken, err := repo.SlugTaken(ctx, "reserved")
		require.NoError(t, err)
		assert.True(t, taken)

		taken, err = repo.SlugTaken(ctx, "free")
		require.NoError(t, err)
		assert.False(t, taken)
	})

	t.Run("Update", func(t *testing.T) {
		repo := newRepo(t)
		a := NewAsset("Before", "before", assetregistry.DiskRemote, base)
		b := NewAsset("Other", "other", assetregistry.DiskRemote, base)
		require.NoError(t, repo.Insert(ctx, a))
		require.NoError(t, repo.Insert(ctx, b))

		label := "After"
		vis := "private"
		updated, err := repo.Update(ctx, a.ID, assetregistry.Patch{Label: &label, Visibility: &vis})
		require.NoError(t, err)
		assert.Equal(t, "After", updated.Label)
		assert.Equal(t, "private", updated.Visibility)
		assert.Equal(t, "before", updated.Slug)
		require.NotNil(t, updated.UpdatedAt)

		empty, err := repo.Update(ctx, a.ID, assetregistry.Patch{})
		require.NoError(t, err)
		require.NotNil(t, empty.UpdatedAt)
		assert.False(t, empty.UpdatedAt.Before(*updated.UpdatedAt))

		taken := "other"
		_, err = repo.Update(ctx, a.ID, assetregistry.Patch{Slug: &taken})
		assert.ErrorIs(t, err, assetregistry.ErrSlugConflict)
		got, err := repo.FindBySlug(ctx, "other")
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)

		fresh := "renamed"
		updated, err = repo.Update(ctx, a.ID, assetregistry.Patch{Slug: &fresh})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Slug)
		_, err = repo.FindBySlug(ctx, "before")
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)
		got, err = repo.FindBySlug(ctx, "renamed")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		// the freed slug can be claimed again
		require.NoError(t, repo.Insert(ctx, NewAsset("Reuse", "before", assetregistry.DiskRemote, base)))

		_, err = repo.Update(ctx, uuid.NewString(), assetregistry.Patch{Label: &label})
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)
	})

	t.Run("ListFiltersAndSorts", func(t *testing.T) {
		repo := newRepo(t)
		fixtures := []*assetregistry.Asset{
			NewAsset("Zebra Photo", "zebra", assetregistry.DiskGitHub, base),
			NewAsset("apple icon", "apple", assetregistry.DiskRemote, base.Add(1*time.Minute)),
			NewAsset("Mango Banner", "mango", assetregistry.DiskGitHub, base.Add(2*time.Minute)),
			NewAsset("Kiwi", "kiwi", assetregistry.DiskLocal, base.Add(3*time.Minute)),
		}
		fixtures[3].Visibility = "private"
		for _, a := range fixtures {
			require.NoError(t, repo.Insert(ctx, a))
		}
		_, err := repo.SoftDelete(ctx, fixtures[2].ID)
		require.NoError(t, err)

		items, total, err := repo.List(ctx, assetregistry.ListQuery{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []string{"kiwi", "apple", "zebra"}, slugs(items), "newest first by default")

		items, total, err = repo.List(ctx, assetregistry.ListQuery{
			Filter: assetregistry.Filter{Disk: assetregistry.DiskGitHub, IncludeDeleted: true},
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		for _, a := range items {
			assert.Equal(t, assetregistry.DiskGitHub, a.Disk)
		}

		items, _, err = repo.List(ctx, assetregistry.ListQuery{
			Filter: assetregistry.Filter{Query: "ICON"},
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"apple"}, slugs(items))

		items, _, err = repo.List(ctx, assetregistry.ListQuery{
			Filter: assetregistry.Filter{Visibility: "private"},
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"kiwi"}, slugs(items))

		items, _, err = repo.List(ctx, assetregistry.ListQuery{SortBy: "label", SortDir: "asc", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"apple", "kiwi", "zebra"}, slugs(items))

		items, _, err = repo.List(ctx, assetregistry.ListQuery{SortBy: "password; drop table", SortDir: "sideways", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"kiwi", "apple", "zebra"}, slugs(items), "unknown sort falls back to created_at desc")

		items, total, err = repo.List(ctx, assetregistry.ListQuery{SortBy: "slug", SortDir: "asc", Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []string{"kiwi"}, slugs(items))

		items, total, err = repo.List(ctx, assetregistry.ListQuery{Limit: 10, Offset: 50})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, items)
	})

	t.Run("LimitIsClamped", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < assetregistry.MaxListLimit+5; i++ {
			slug := fmt.Sprintf("asset-%03d", i)
			require.NoError(t, repo.Insert(ctx, NewAsset(slug, slug, assetregistry.DiskRemote, base.Add(time.Duration(i)*time.Second))))
		}

		over, total, err := repo.List(ctx, assetregistry.ListQuery{Limit: 150})
		require.NoError(t, err)
		atMax, _, err := repo.List(ctx, assetregistry.ListQuery{Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, assetregistry.MaxListLimit+5, total)
		assert.Len(t, over, 100)
		assert.Equal(t, slugs(atMax), slugs(over))

		zero, _, err := repo.List(ctx, assetregistry.ListQuery{Limit: 0})
		require.NoError(t, err)
		one, _, err := repo.List(ctx, assetregistry.ListQuery{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, zero, 1)
		assert.Equal(t, slugs(one), slugs(zero))

		negative, _, err := repo.List(ctx, assetregistry.ListQuery{Limit: 1, Offset: -4})
		require.NoError(t, err)
		assert.Equal(t, slugs(one), slugs(negative))
	})
}

func slugs(items []*assetregistry.Asset) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.Slug)
	}
	return out
}
