// Package kvtree implements assetregistry.Repository on a badger key/value
// tree:
//
//	assets/<id>   -> JSON encoded asset
//	slugs/<slug>  -> id
//
// Slug claims happen inside read-write transactions, so of two concurrent
// inserts for the same slug exactly one commits.
package kvtree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/tendant/asset-registry/pkg/assetregistry"
)

const (
	assetPrefix = "assets/"
	slugPrefix  = "slugs/"
)

// Config for the badger store
type Config struct {
	// Directory holds the badger files. Ignored when InMemory is set.
	Directory string
	InMemory  bool
	Logger    *slog.Logger
	LogLevel  slog.Level
}

// Store implements assetregistry.Repository on badger
type Store struct {
	db  *badger.DB
	now func() time.Time
}

var _ assetregistry.Repository = (*Store)(nil)

// Open opens (or creates) the badger database.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Directory == "" {
			return nil, errors.New("kvtree directory is required")
		}
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Directory)
	}
	opts = opts.
		WithLogger(newLogger(logger.WithGroup("badger"))).
		WithMemTableSize(16 << 20)
	opts = withBadgerLevel(opts, cfg.LogLevel)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func assetKey(id string) []byte {
	return []byte(assetPrefix + id)
}

func slugKey(slug string) []byte {
	return []byte(slugPrefix + slug)
}

func getAsset(txn *badger.Txn, id string) (*assetregistry.Asset, error) {
	item, err := txn.Get(assetKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, assetregistry.ErrAssetNotFound
	} else if err != nil {
		return nil, err
	}
	var a assetregistry.Asset
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &a)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode asset %s: %w", id, err)
	}
	return &a, nil
}

func putAsset(txn *badger.Txn, a *assetregistry.Asset) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode asset: %w", err)
	}
	return txn.Set(assetKey(a.ID), data)
}

// slugOwner returns the id holding slug, or "" when it is free.
func slugOwner(txn *badger.Txn, slug string) (string, error) {
	item, err := txn.Get(slugKey(slug))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (s *Store) Insert(ctx context.Context, asset *assetregistry.Asset) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		owner, err := slugOwner(txn, asset.Slug)
		if err != nil {
			return err
		}
		if owner != "" {
			return assetregistry.ErrSlugConflict
		}
		if _, err := getAsset(txn, asset.ID); err == nil {
			return fmt.Errorf("asset %s already exists", asset.ID)
		} else if !errors.Is(err, assetregistry.ErrAssetNotFound) {
			return err
		}
		if err := putAsset(txn, asset); err != nil {
			return err
		}
		return txn.Set(slugKey(asset.Slug), []byte(asset.ID))
	})
	if errors.Is(err, badger.ErrConflict) {
		return assetregistry.ErrSlugConflict
	}
	return err
}

func (s *Store) FindBySlug(ctx context.Context, slug string) (*assetregistry.Asset, error) {
	var out *assetregistry.Asset
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := slugOwner(txn, slug)
		if err != nil {
			return err
		}
		if id == "" {
			return assetregistry.ErrAssetNotFound
		}
		a, err := getAsset(txn, id)
		if err != nil {
			return err
		}
		if a.IsDeleted() {
			return assetregistry.ErrAssetNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SlugTaken(ctx context.Context, slug string) (bool, error) {
	taken := false
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := slugOwner(txn, slug)
		taken = id != ""
		return err
	})
	if err != nil {
		return false, err
	}
	return taken, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*assetregistry.Asset, error) {
	var out *assetregistry.Asset
	err := s.db.View(func(txn *badger.Txn) error {
		a, err := getAsset(txn, id)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, patch assetregistry.Patch) (*assetregistry.Asset, error) {
	var out *assetregistry.Asset
	slugChange := false
	err := s.db.Update(func(txn *badger.Txn) error {
		a, err := getAsset(txn, id)
		if err != nil {
			return err
		}
		oldSlug := a.Slug
		if patch.Slug != nil && *patch.Slug != oldSlug {
			slugChange = true
			owner, err := slugOwner(txn, *patch.Slug)
			if err != nil {
				return err
			}
			if owner != "" && owner != id {
				return assetregistry.ErrSlugConflict
			}
		}
		if assetregistry.ApplyPatch(a, patch, s.now()) {
			if err := txn.Delete(slugKey(oldSlug)); err != nil {
				return err
			}
			if err := txn.Set(slugKey(a.Slug), []byte(id)); err != nil {
				return err
			}
		}
		if err := putAsset(txn, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		if slugChange {
			return nil, assetregistry.ErrSlugConflict
		}
		return nil, fmt.Errorf("concurrent update of asset %s: %w", id, err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SoftDelete(ctx context.Context, id string) (bool, error) {
	return s.setDeleted(id, true)
}

func (s *Store) Restore(ctx context.Context, id string) (bool, error) {
	return s.setDeleted(id, false)
}

func (s *Store) setDeleted(id string, deleted bool) (bool, error) {
	changed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		a, err := getAsset(txn, id)
		if errors.Is(err, assetregistry.ErrAssetNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if a.IsDeleted() == deleted {
			return nil
		}
		now := s.now().UTC()
		if deleted {
			a.DeletedAt = &now
		} else {
			a.DeletedAt = nil
		}
		a.UpdatedAt = &now
		changed = true
		return putAsset(txn, a)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *Store) List(ctx context.Context, query assetregistry.ListQuery) ([]*assetregistry.Asset, int, error) {
	query = assetregistry.NormalizeListQuery(query)
	matched, err := s.scan(query.Filter)
	if err != nil {
		return nil, 0, err
	}
	assetregistry.SortAssets(matched, query.SortBy, query.SortDir)
	return assetregistry.Paginate(matched, query.Limit, query.Offset), len(matched), nil
}

func (s *Store) Count(ctx context.Context, filter assetregistry.Filter) (int, error) {
	matched, err := s.scan(filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// scan walks the assets/ prefix and keeps the matches.
func (s *Store) scan(filter assetregistry.Filter) ([]*assetregistry.Asset, error) {
	var out []*assetregistry.Asset
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(assetPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var a assetregistry.Asset
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			if assetregistry.MatchesFilter(&a, filter) {
				out = append(out, &a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
