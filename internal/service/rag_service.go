package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ragmem/internal/chunker"
	"ragmem/internal/domain"
	"ragmem/internal/registry"
	"ragmem/internal/textnorm"
	"ragmem/internal/vectorstore"
)

// Remove policies for RemoveCollection.
const (
	RemoveOne = "one"
	RemoveAll = "all"
)

// SourceLoader resolves an ingestion source into page texts.
type SourceLoader interface {
	Load(ctx context.Context, src domain.Source) ([]string, error)
}

// Embedder is the embedding strategy holder used by the service.
type Embedder interface {
	domain.Embedder
	Use(name string) error
}

// ChunkerFactory builds the ingestion chunker for the requested sizes.
type ChunkerFactory func(size, overlap int) (domain.Chunker, error)

// RecursiveChunkers is the default ChunkerFactory.
func RecursiveChunkers(size, overlap int) (domain.Chunker, error) {
	return chunker.NewRecursiveChunker(size, overlap)
}

// Options carries service-wide defaults.
type Options struct {
	DefaultCollection string
	NResults          int
	BatchSize         int
	StoragePath       string
	RemovePolicy      string
	Chunkers          ChunkerFactory
	Logger            logrus.FieldLogger
}

// IngestRequest describes one ingestion. Zero values select defaults.
type IngestRequest struct {
	Source      domain.Source
	Collection  string
	Description string
	// ChunkSize defaults to 500. ChunkOverlap defaults to 50, capped at half
	// the chunk size; set NoOverlap for chunks without shared context.
	ChunkSize    int
	ChunkOverlap int
	NoOverlap    bool
	BatchSize    int
	// Overwrite replaces the collection's content instead of appending.
	Overwrite      bool
	StoragePath    string
	EmbeddingModel string
}

// IngestResult reports what was stored.
type IngestResult struct {
	Collection string
	Chunks     int
	IDs        []string
}

// RetrieveRequest describes one retrieval. Zero values select defaults;
// a negative NResults is rejected.
type RetrieveRequest struct {
	Query       string
	Collection  string
	NResults    int
	StoragePath string
}

// SearchMetadata identifies the stored document behind a result.
type SearchMetadata struct {
	Page int    `json:"page"`
	ID   string `json:"id"`
}

// SearchResult is one retrieved document as exposed to callers.
type SearchResult struct {
	PageContent string         `json:"page_content"`
	Metadata    SearchMetadata `json:"metadata"`
}

// RAGService orchestrates ingestion and retrieval over named collections.
type RAGService struct {
	loader   SourceLoader
	embedder Embedder
	stores   *vectorstore.Manager
	registry *registry.Registry
	opts     Options
	log      logrus.FieldLogger
}

func NewRAGService(loader SourceLoader, embedder Embedder, stores *vectorstore.Manager, reg *registry.Registry, opts Options) *RAGService {
	if opts.DefaultCollection == "" {
		opts.DefaultCollection = "default_collection"
	}
	if opts.NResults <= 0 {
		opts.NResults = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.RemovePolicy == "" {
		opts.RemovePolicy = RemoveOne
	}
	if opts.Chunkers == nil {
		opts.Chunkers = RecursiveChunkers
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &RAGService{
		loader:   loader,
		embedder: embedder,
		stores:   stores,
		registry: reg,
		opts:     opts,
		log:      opts.Logger,
	}
}

// Registry exposes the collection registry.
func (s *RAGService) Registry() *registry.Registry { return s.registry }

func (s *RAGService) collection(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return s.opts.DefaultCollection
	}
	return name
}

func (s *RAGService) storagePath(path string) string {
	if path == "" {
		return s.opts.StoragePath
	}
	return path
}

func validateSource(src domain.Source) error {
	switch src.Kind {
	case domain.SourceText, domain.SourceFile, domain.SourceURL:
	default:
		return fmt.Errorf("%w: one of text, file or url is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(src.Value) == "" {
		return fmt.Errorf("%w: empty %s source", domain.ErrInvalidInput, src.Kind)
	}
	return nil
}

// chunkParams fills in the chunk size and overlap defaults independently.
func chunkParams(req IngestRequest) (size, overlap int, err error) {
	size, overlap = req.ChunkSize, req.ChunkOverlap
	if size == 0 {
		size = chunker.DefaultChunkSize
	}
	switch {
	case req.NoOverlap && overlap != 0:
		return 0, 0, fmt.Errorf("%w: chunk overlap %d conflicts with no-overlap", domain.ErrInvalidInput, overlap)
	case req.NoOverlap:
	case overlap == 0:
		overlap = chunker.DefaultOverlap(size)
	}
	return size, overlap, nil
}

// Ingest loads, normalizes, chunks, embeds and stores a source.
// Nothing is rolled back when a later step fails.
func (s *RAGService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := validateSource(req.Source); err != nil {
		return nil, err
	}
	coll := s.collection(req.Collection)
	size, overlap, err := chunkParams(req)
	if err != nil {
		return nil, err
	}
	split, err := s.opts.Chunkers(size, overlap)
	if err != nil {
		return nil, err
	}
	batch := req.BatchSize
	if batch < 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrInvalidInput, batch)
	}
	if batch == 0 {
		batch = s.opts.BatchSize
	}

	log := s.log.WithFields(logrus.Fields{
		"ingest_id":  uuid.NewString(),
		"collection": coll,
		"source":     req.Source.Kind.String(),
	})
	switch {
	case s.registry.Register(coll, req.Description):
		log.Info("new collection")
	case req.Overwrite:
		log.Info("overwriting collection")
	default:
		log.Info("appending to collection")
	}

	pages, err := s.loader.Load(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	cleaned := make([]string, len(pages))
	for i, p := range pages {
		cleaned[i] = textnorm.Clean(p)
	}
	chunks, err := split.Split(strings.Join(cleaned, "\n"))
	if err != nil {
		return nil, fmt.Errorf("chunk source: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s source produced no text", domain.ErrEmptyDocument, req.Source.Kind)
	}

	if err := s.embedder.Use(req.EmbeddingModel); err != nil {
		return nil, err
	}
	vectors, err := s.embedder.Embed(ctx, chunks, batch)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	store, err := s.stores.Store(s.storagePath(req.StoragePath))
	if err != nil {
		return nil, err
	}
	ids, err := store.Add(ctx, coll, chunks, vectors, vectorstore.AddOptions{
		Append: !req.Overwrite,
		Pages:  len(pages),
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"pages":  len(pages),
		"chunks": len(chunks),
		"model":  s.embedder.ModelName(),
	}).Info("ingestion complete")
	return &IngestResult{Collection: coll, Chunks: len(chunks), IDs: ids}, nil
}

// IngestText appends text to collection with default chunking.
func (s *RAGService) IngestText(ctx context.Context, collection, description, text, storagePath string) error {
	_, err := s.Ingest(ctx, IngestRequest{
		Source:      domain.TextSource(text),
		Collection:  collection,
		Description: description,
		StoragePath: storagePath,
	})
	return err
}

// matches embeds the query fragments and returns the flattened result sets
// in fragment order. Duplicates across fragments are kept.
func (s *RAGService) matches(ctx context.Context, req RetrieveRequest) ([]domain.Match, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	n := req.NResults
	if n < 0 {
		return nil, fmt.Errorf("%w: n_results must be positive, got %d", domain.ErrInvalidInput, n)
	}
	if n == 0 {
		n = s.opts.NResults
	}
	coll := s.collection(req.Collection)

	split, err := chunker.NewRecursiveChunker(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	if err != nil {
		return nil, err
	}
	fragments, err := split.Split(req.Query)
	if err != nil {
		return nil, err
	}
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	vectors, err := s.embedder.Embed(ctx, fragments, s.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	store, err := s.stores.Store(s.storagePath(req.StoragePath))
	if err != nil {
		return nil, err
	}
	sets, err := store.Query(ctx, coll, vectors, n)
	if err != nil {
		return nil, err
	}
	var flat []domain.Match
	for _, set := range sets {
		flat = append(flat, set...)
	}
	s.log.WithFields(logrus.Fields{
		"collection": coll,
		"fragments":  len(fragments),
		"results":    len(flat),
	}).Debug("retrieval complete")
	return flat, nil
}

// Retrieve returns the cleaned text of the documents most similar to the query.
func (s *RAGService) Retrieve(ctx context.Context, req RetrieveRequest) ([]string, error) {
	found, err := s.matches(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(found))
	for _, m := range found {
		if text := textnorm.CleanResult(m.Document.Text); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}

// Search is Retrieve with document metadata attached.
func (s *RAGService) Search(ctx context.Context, req RetrieveRequest) ([]SearchResult, error) {
	found, err := s.matches(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(found))
	for _, m := range found {
		text := textnorm.CleanResult(m.Document.Text)
		if text == "" {
			continue
		}
		out = append(out, SearchResult{
			PageContent: text,
			Metadata:    SearchMetadata{Page: m.Document.Metadata.Page, ID: m.Document.ID},
		})
	}
	return out, nil
}

// RemoveCollection deletes collections according to the configured policy and
// returns the names it removed. With RemoveOne only name is deleted; with
// RemoveAll every registered or stored collection is deleted and the registry
// cleared.
func (s *RAGService) RemoveCollection(ctx context.Context, name, storagePath string) ([]string, error) {
	store, err := s.stores.Store(s.storagePath(storagePath))
	if err != nil {
		return nil, err
	}
	switch s.opts.RemovePolicy {
	case RemoveAll:
		stored, err := store.Collections(ctx)
		if err != nil {
			return nil, err
		}
		names := mergeNames(s.registry.Names(), stored)
		for _, n := range names {
			if err := store.DeleteCollection(ctx, n); err != nil {
				return nil, err
			}
		}
		s.registry.Clear()
		s.log.WithField("removed", len(names)).Info("all collections removed")
		return names, nil
	case RemoveOne:
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
		}
		if err := store.DeleteCollection(ctx, name); err != nil {
			return nil, err
		}
		s.registry.Remove(name)
		return []string{name}, nil
	default:
		return nil, fmt.Errorf("%w: unknown remove policy %q", domain.ErrInvalidInput, s.opts.RemovePolicy)
	}
}

func mergeNames(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, n := range append(append([]string{}, a...), b...) {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ListCollections returns the registry's name -> description map.
func (s *RAGService) ListCollections() map[string]string {
	return s.registry.List()
}

// StoredCollections lists the collections physically present in a store.
func (s *RAGService) StoredCollections(ctx context.Context, storagePath string) ([]string, error) {
	store, err := s.stores.Store(s.storagePath(storagePath))
	if err != nil {
		return nil, err
	}
	return store.Collections(ctx)
}
