package kvtree_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/asset-registry/pkg/assetregistry"
	"github.com/tendant/asset-registry/pkg/assetregistry/repo/kvtree"
	"github.com/tendant/asset-registry/pkg/assetregistry/repo/repotest"
)

func openInMemory(t *testing.T) *kvtree.Store {
	t.Helper()
	store, err := kvtree.Open(kvtree.Config{InMemory: true, LogLevel: slog.LevelError})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) assetregistry.Repository {
		return openInMemory(t)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := kvtree.Open(kvtree.Config{Directory: dir, LogLevel: slog.LevelError})
	require.NoError(t, err)
	a := repotest.NewAsset("Persisted", "persisted", assetregistry.DiskS3, time.Now())
	require.NoError(t, store.Insert(ctx, a))
	require.NoError(t, store.Close())

	reopened, err := kvtree.Open(kvtree.Config{Directory: dir, LogLevel: slog.LevelError})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.FindBySlug(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, assetregistry.DiskS3, got.Disk)
}

func TestOpen_RequiresDirectory(t *testing.T) {
	_, err := kvtree.Open(kvtree.Config{})
	assert.Error(t, err)
}

func TestStore_ConcurrentInsertSameSlug(t *testing.T) {
	ctx := context.Background()
	store := openInMemory(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	ids := make([]string, writers)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		a := repotest.NewAsset("Race", "race", assetregistry.DiskRemote, time.Now())
		ids[i] = a.ID
		wg.Add(1)
		go func(i int, a *assetregistry.Asset) {
			defer wg.Done()
			<-start
			errs[i] = store.Insert(ctx, a)
		}(i, a)
	}
	close(start)
	wg.Wait()

	winners := 0
	var winner string
	for i, err := range errs {
		if err == nil {
			winners++
			winner = ids[i]
			continue
		}
		assert.True(t, errors.Is(err, assetregistry.ErrSlugConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, winners)

	got, err := store.FindBySlug(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, winner, got.ID)

	n, err := store.Count(ctx, assetregistry.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "losers leave nothing behind")
}
