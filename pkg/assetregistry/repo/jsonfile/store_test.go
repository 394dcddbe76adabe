package jsonfile_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/asset-registry/pkg/assetregistry"
	"github.com/tendant/asset-registry/pkg/assetregistry/repo/jsonfile"
	"github.com/tendant/asset-registry/pkg/assetregistry/repo/repotest"
)

func TestMemoryStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) assetregistry.Repository {
		return jsonfile.NewMemory()
	})
}

func TestFileStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) assetregistry.Repository {
		sink, err := jsonfile.NewFileSink(filepath.Join(t.TempDir(), "data", "assets.json"))
		require.NoError(t, err)
		store, err := jsonfile.Open(context.Background(), sink)
		require.NoError(t, err)
		return store
	})
}

func TestFileStore_ReopenKeepsDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "assets.json")
	sink, err := jsonfile.NewFileSink(path)
	require.NoError(t, err)

	store, err := jsonfile.Open(ctx, sink)
	require.NoError(t, err)
	a := repotest.NewAsset("Logo", "logo", assetregistry.DiskRemote, time.Now())
	require.NoError(t, store.Insert(ctx, a))
	_, err = store.SoftDelete(ctx, a.ID)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Assets map[string]json.RawMessage `json:"assets"`
		Slugs  map[string]string          `json:"slugs"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc.Assets, a.ID)
	assert.Equal(t, a.ID, doc.Slugs["logo"])

	reopened, err := jsonfile.Open(ctx, sink)
	require.NoError(t, err)
	got, err := reopened.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)

	// the slug survives the reload reserved
	err = reopened.Insert(ctx, repotest.NewAsset("Logo 2", "logo", assetregistry.DiskRemote, time.Now()))
	assert.ErrorIs(t, err, assetregistry.ErrSlugConflict)
}

func TestOpen_RejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := jsonfile.Open(context.Background(), &jsonfile.FileSink{Path: path})
	assert.Error(t, err)
}

type failingSink struct {
	fail bool
}

func (f *failingSink) Load(ctx context.Context) ([]byte, error) { return nil, nil }

func (f *failingSink) Save(ctx context.Context, data []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestStore_RollsBackWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	sink := &failingSink{}
	store, err := jsonfile.Open(ctx, sink)
	require.NoError(t, err)

	kept := repotest.NewAsset("Kept", "kept", assetregistry.DiskRemote, time.Now())
	require.NoError(t, store.Insert(ctx, kept))

	sink.fail = true

	t.Run("Insert", func(t *testing.T) {
		a := repotest.NewAsset("Lost", "lost", assetregistry.DiskRemote, time.Now())
		require.Error(t, store.Insert(ctx, a))
		_, err := store.GetByID(ctx, a.ID)
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)
		_, err = store.FindBySlug(ctx, "lost")
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		slug := "moved"
		_, err := store.Update(ctx, kept.ID, assetregistry.Patch{Slug: &slug})
		require.Error(t, err)
		got, err := store.FindBySlug(ctx, "kept")
		require.NoError(t, err)
		assert.Equal(t, kept.ID, got.ID)
		assert.Nil(t, got.UpdatedAt)
		_, err = store.FindBySlug(ctx, "moved")
		assert.ErrorIs(t, err, assetregistry.ErrAssetNotFound)
	})

	t.Run("SoftDelete", func(t *testing.T) {
		ok, err := store.SoftDelete(ctx, kept.ID)
		require.Error(t, err)
		assert.False(t, ok)
		got, err := store.FindBySlug(ctx, "kept")
		require.NoError(t, err)
		assert.Nil(t, got.DeletedAt)
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := jsonfile.NewMemory()
	a := repotest.NewAsset("Copy", "copy", assetregistry.DiskRemote, time.Now())
	require.NoError(t, store.Insert(ctx, a))

	a.Label = "mutated by caller"
	got, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Copy", got.Label)

	got.Label = "mutated again"
	again, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Copy", again.Label)
}
