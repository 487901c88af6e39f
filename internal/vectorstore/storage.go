package vectorstore

import (
	"context"

	"ragmem/internal/domain"
)

// Backend is the physical storage behind a Store. Implementations need not
// serialize writers to one collection; Store does that.
//
// Search and Count on a missing collection return domain.ErrCollectionNotFound.
// Drop on a missing collection is a no-op.
type Backend interface {
	Exists(ctx context.Context, collection string) (bool, error)
	Create(ctx context.Context, collection string, dimension int) error
	Count(ctx context.Context, collection string) (int, error)
	Insert(ctx context.Context, collection string, docs []domain.StoredDocument) error
	Search(ctx context.Context, collection string, vector []float32, n int) ([]domain.Match, error)
	Drop(ctx context.Context, collection string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Opener opens the backend for a storage path. The empty path means an
// ephemeral store.
type Opener func(path string) (Backend, error)
