package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ragmem/internal/domain"
)

// AddOptions controls how Add treats an existing collection.
type AddOptions struct {
	// Append keeps existing documents. When false the collection is dropped
	// and recreated before inserting.
	Append bool
	// Pages is the number of source pages the chunks came from; it drives
	// the page metadata of each stored document.
	Pages int
}

// Store manages named collections on one backend. Writers to the same
// collection are serialized; readers run concurrently with each other.
type Store struct {
	backend   Backend
	dimension int
	timeout   time.Duration
	locks     *keyedLocks
	log       logrus.FieldLogger
}

// NewStore wraps backend. Every vector written or queried must have
// dimension values. timeout bounds each backend call; zero disables it.
func NewStore(backend Backend, dimension int, timeout time.Duration, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		backend:   backend,
		dimension: dimension,
		timeout:   timeout,
		locks:     newKeyedLocks(),
		log:       log,
	}
}

// Dimension returns the configured vector size.
func (s *Store) Dimension() int { return s.dimension }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) checkDimension(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: vector %d has %d values, store expects %d",
				domain.ErrDimensionMismatch, i, len(v), s.dimension)
		}
	}
	return nil
}

// Add stores chunks with their vectors in collection, creating it if needed,
// and returns the assigned IDs. IDs continue from the collection's current
// document count.
func (s *Store) Add(ctx context.Context, collection string, chunks []string, vectors [][]float32, opts AddOptions) ([]string, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: empty collection name", domain.ErrInvalidInput)
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrInvalidInput, len(chunks), len(vectors))
	}
	if err := s.checkDimension(vectors); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(collection)
	defer unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if !opts.Append {
		if err := s.backend.Drop(ctx, collection); err != nil {
			return nil, fmt.Errorf("drop collection %q: %w", collection, err)
		}
	}
	exists, err := s.backend.Exists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %q: %w", collection, err)
	}
	if !exists {
		if err := s.backend.Create(ctx, collection, s.dimension); err != nil {
			return nil, fmt.Errorf("create collection %q: %w", collection, err)
		}
		s.log.WithField("collection", collection).Debug("collection created")
	}
	count, err := s.backend.Count(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("count collection %q: %w", collection, err)
	}

	per := len(chunks)
	if opts.Pages > 0 {
		per = len(chunks) / opts.Pages
	}
	if per < 1 {
		per = 1
	}
	ids := make([]string, len(chunks))
	docs := make([]domain.StoredDocument, len(chunks))
	for i, text := range chunks {
		ids[i] = strconv.Itoa(count + i)
		docs[i] = domain.StoredDocument{
			ID:       ids[i],
			Text:     text,
			Vector:   vectors[i],
			Metadata: domain.Metadata{Page: i / per},
		}
	}
	if len(docs) > 0 {
		if err := s.backend.Insert(ctx, collection, docs); err != nil {
			return nil, fmt.Errorf("insert into %q: %w", collection, err)
		}
	}
	s.log.WithFields(logrus.Fields{"collection": collection, "added": len(docs), "total": count + len(docs)}).
		Debug("documents stored")
	return ids, nil
}

// Query returns, for each query vector, up to n documents of collection
// ranked by cosine similarity. Result sets keep the order of vectors.
func (s *Store) Query(ctx context.Context, collection string, vectors [][]float32, n int) ([][]domain.Match, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", domain.ErrInvalidInput, n)
	}
	if err := s.checkDimension(vectors); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(collection)
	defer unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.backend.Exists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %q: %w", collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, collection)
	}

	results := make([][]domain.Match, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range vectors {
		g.Go(func() error {
			matches, err := s.backend.Search(gctx, collection, v, n)
			if err != nil {
				return fmt.Errorf("search %q: %w", collection, err)
			}
			results[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteCollection irreversibly removes collection. A missing collection is
// not an error.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	unlock := s.locks.Lock(collection)
	defer unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.backend.Drop(ctx, collection); err != nil {
		return fmt.Errorf("drop collection %q: %w", collection, err)
	}
	s.log.WithField("collection", collection).Info("collection deleted")
	return nil
}

// Count returns the number of documents in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	unlock := s.locks.RLock(collection)
	defer unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.backend.Count(ctx, collection)
}

// Collections lists the collections physically present in the backend.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.backend.List(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
