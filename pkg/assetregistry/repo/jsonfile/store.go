// Package jsonfile implements assetregistry.Repository as a single JSON
// document held in memory and written through a Sink after every mutation.
//
// The document is
//
//	{"assets": {"<id>": {...}}, "slugs": {"<slug>": "<id>"}}
//
// The store is single-writer: the mutex serialises writers in one process and
// several processes sharing one document are not supported.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tendant/asset-registry/pkg/assetregistry"
)

// Sink persists the encoded document.
type Sink interface {
	// Load returns the stored document, or nil when nothing was stored yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

type document struct {
	Assets map[string]*assetregistry.Asset `json:"assets"`
	Slugs  map[string]string               `json:"slugs"`
}

// Store implements assetregistry.Repository over a JSON document
type Store struct {
	mu   sync.RWMutex
	doc  document
	sink Sink
	now  func() time.Time
}

var _ assetregistry.Repository = (*Store)(nil)

// NewMemory creates a store that is never persisted.
func NewMemory() *Store {
	return &Store{doc: emptyDocument(), now: time.Now}
}

// Open loads the document from sink. A nil sink behaves like NewMemory.
func Open(ctx context.Context, sink Sink) (*Store, error) {
	s := NewMemory()
	s.sink = sink
	if sink == nil {
		return s, nil
	}

	data, err := sink.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset document: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode asset document: %w", err)
	}
	if doc.Assets == nil {
		doc.Assets = make(map[string]*assetregistry.Asset)
	}
	// the slug index is derived data, rebuild it from the assets
	doc.Slugs = make(map[string]string, len(doc.Assets))
	for id, a := range doc.Assets {
		if other, taken := doc.Slugs[a.Slug]; taken {
			return nil, fmt.Errorf("asset document has duplicate slug %q (%s, %s)", a.Slug, other, id)
		}
		doc.Slugs[a.Slug] = id
	}
	s.doc = doc
	return s, nil
}

func emptyDocument() document {
	return document{
		Assets: make(map[string]*assetregistry.Asset),
		Slugs:  make(map[string]string),
	}
}

// persist writes the document. Callers hold the write lock.
func (s *Store) persist(ctx context.Context) error {
	if s.sink == nil {
		return nil
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode asset document: %w", err)
	}
	if err := s.sink.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save asset document: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, asset *assetregistry.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.doc.Slugs[asset.Slug]; taken {
		return assetregistry.ErrSlugConflict
	}
	if _, exists := s.doc.Assets[asset.ID]; exists {
		return fmt.Errorf("asset %s already exists", asset.ID)
	}

	s.doc.Assets[asset.ID] = asset.Clone()
	s.doc.Slugs[asset.Slug] = asset.ID
	if err := s.persist(ctx); err != nil {
		delete(s.doc.Assets, asset.ID)
		delete(s.doc.Slugs, asset.Slug)
		return err
	}
	return nil
}

func (s *Store) FindBySlug(ctx context.Context, slug string) (*assetregistry.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.doc.Slugs[slug]
	if !ok {
		return nil, assetregistry.ErrAssetNotFound
	}
	a, ok := s.doc.Assets[id]
	if !ok || a.IsDeleted() {
		return nil, assetregistry.ErrAssetNotFound
	}
	return a.Clone(), nil
}

func (s *Store) SlugTaken(ctx context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, taken := s.doc.Slugs[slug]
	return taken, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*assetregistry.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.doc.Assets[id]
	if !ok {
		return nil, assetregistry.ErrAssetNotFound
	}
	return a.Clone(), nil
}

func (s *Store) Update(ctx context.Context, id string, patch assetregistry.Patch) (*assetregistry.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.doc.Assets[id]
	if !ok {
		return nil, assetregistry.ErrAssetNotFound
	}
	if patch.Slug != nil && *patch.Slug != current.Slug {
		if owner, taken := s.doc.Slugs[*patch.Slug]; taken && owner != id {
			return nil, assetregistry.ErrSlugConflict
		}
	}

	previous := current.Clone()
	updated := current.Clone()
	if assetregistry.ApplyPatch(updated, patch, s.now()) {
		delete(s.doc.Slugs, previous.Slug)
		s.doc.Slugs[updated.Slug] = id
	}
	s.doc.Assets[id] = updated

	if err := s.persist(ctx); err != nil {
		delete(s.doc.Slugs, updated.Slug)
		s.doc.Slugs[previous.Slug] = id
		s.doc.Assets[id] = previous
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *Store) SoftDelete(ctx context.Context, id string) (bool, error) {
	return s.setDeleted(ctx, id, true)
}

func (s *Store) Restore(ctx context.Context, id string) (bool, error) {
	return s.setDeleted(ctx, id, false)
}

func (s *Store) setDeleted(ctx context.Context, id string, deleted bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.doc.Assets[id]
	if !ok || a.IsDeleted() == deleted {
		return false, nil
	}

	previous := a.Clone()
	now := s.now().UTC()
	if deleted {
		a.DeletedAt = &now
	} else {
		a.DeletedAt = nil
	}
	a.UpdatedAt = &now

	if err := s.persist(ctx); err != nil {
		s.doc.Assets[id] = previous
		return false, err
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, query assetregistry.ListQuery) ([]*assetregistry.Asset, int, error) {
	query = assetregistry.NormalizeListQuery(query)

	s.mu.RLock()
	matched := s.matching(query.Filter)
	s.mu.RUnlock()

	assetregistry.SortAssets(matched, query.SortBy, query.SortDir)
	return assetregistry.Paginate(matched, query.Limit, query.Offset), len(matched), nil
}

func (s *Store) Count(ctx context.Context, filter assetregistry.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(filter)), nil
}

// matching returns clones of the assets matching filter. Callers hold a lock.
func (s *Store) matching(filter assetregistry.Filter) []*assetregistry.Asset {
	out := make([]*assetregistry.Asset, 0, len(s.doc.Assets))
	for _, a := range s.doc.Assets {
		if assetregistry.MatchesFilter(a, filter) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Close is a no-op; every mutation is already persisted.
func (s *Store) Close() error {
	return nil
}
