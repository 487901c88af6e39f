package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragmem/internal/domain"
	"ragmem/internal/vectorstore/vecmath"
)

type collection struct {
	dimension int
	docs      []domain.StoredDocument
}

// Storage is an ephemeral vector store using brute-force cosine similarity.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *Storage) Create(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &collection{dimension: dimension}
	}
	return nil
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	return len(c.docs), nil
}

func (s *Storage) Insert(_ context.Context, name string, docs []domain.StoredDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	for _, d := range docs {
		if len(d.Vector) != c.dimension {
			return fmt.Errorf("%w: document %s has %d values, collection expects %d",
				domain.ErrDimensionMismatch, d.ID, len(d.Vector), c.dimension)
		}
	}
	c.docs = append(c.docs, docs...)
	return nil
}

func (s *Storage) Search(ctx context.Context, name string, vector []float32, n int) ([]domain.Match, error) {
	s.mu.RLock()
	c, ok := s.collections[name]
	var docs []domain.StoredDocument
	if ok {
		docs = c.docs[:len(c.docs):len(c.docs)]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vecmath.Rank(docs, vector, n), nil
}

func (s *Storage) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Storage) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) Close() error { return nil }
