package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragmem/internal/domain"
	"ragmem/internal/embedding"
	"ragmem/internal/embedding/hashing"
	"ragmem/internal/loader"
	"ragmem/internal/registry"
	"ragmem/internal/vectorstore"
	"ragmem/internal/vectorstore/memory"
)

const testDim = 64

type stubLoader struct {
	pages []string
	err   error
	calls atomic.Int32
}

func (l *stubLoader) Load(_ context.Context, src domain.Source) ([]string, error) {
	l.calls.Add(1)
	if src.Kind == domain.SourceText {
		return []string{src.Value}, nil
	}
	return l.pages, l.err
}

type renamedModel struct {
	*hashing.Embedder
	name string
}

func (m renamedModel) Name() string { return m.name }

type fixture struct {
	svc    *RAGService
	loader *stubLoader
	hook   *test.Hook
	emb    *embedding.Service
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	factory := func(name string) (embedding.Model, error) {
		if name == "alt" {
			return renamedModel{Embedder: hashing.NewEmbedder(testDim), name: "alt"}, nil
		}
		return nil, fmt.Errorf("%w: %s", embedding.ErrUnknownModel, name)
	}
	emb := embedding.NewService(hashing.NewEmbedder(testDim), factory, 0, logger)
	stores := vectorstore.NewManager(func(string) (vectorstore.Backend, error) {
		return memory.NewStorage(), nil
	}, testDim, 0, logger)
	t.Cleanup(func() { _ = stores.Close() })

	opts := Options{Logger: logger}
	for _, m := range mutate {
		m(&opts)
	}
	l := &stubLoader{}
	return &fixture{
		svc:    NewRAGService(l, emb, stores, registry.New(), opts),
		loader: l,
		hook:   hook,
		emb:    emb,
	}
}

func (f *fixture) ingestText(t *testing.T, coll, text string) *IngestResult {
	t.Helper()
	res, err := f.svc.Ingest(context.Background(), IngestRequest{Source: domain.TextSource(text), Collection: coll})
	require.NoError(t, err)
	return res
}

func TestIngestAndRetrieve_CleansBothWays(t *testing.T) {
	f := newFixture(t)
	res := f.ingestText(t, "pets", "The cat sat. The cat sat. It was happy.")
	assert.Equal(t, "pets", res.Collection)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, []string{"0"}, res.IDs)

	got, err := f.svc.Retrieve(context.Background(), RetrieveRequest{Query: "cat", Collection: "pets"})
	require.NoError(t, err)
	assert.Equal(t, []string{"The cat sat. The cat sat. It was hapy."}, got)
}

func TestRetrieve_RanksRelevantChunkFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := "Goroutines are cheap threads managed by the runtime.\n\n" +
		strings.Repeat("Bread needs flour, water, salt and yeast. ", 12) + "\n\n" +
		"Channels pass values between goroutines."
	res, err := f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource(text), Collection: "mixed", ChunkSize: 120, ChunkOverlap: 10})
	require.NoError(t, err)
	require.Greater(t, res.Chunks, 2)

	got, err := f.svc.Retrieve(ctx, RetrieveRequest{Query: "bread flour yeast", Collection: "mixed", NResults: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "flour")
}

func TestRetrieve_DefaultCollectionAndN(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 7; i++ {
		f.ingestText(t, "", fmt.Sprintf("note number %d about things", i))
	}
	got, err := f.svc.Retrieve(context.Background(), RetrieveRequest{Query: "note"})
	require.NoError(t, err)
	assert.Len(t, got, 5)
	_, ok := f.svc.Registry().Get("default_collection")
	assert.True(t, ok)
}

func TestRetrieve_LongQueryFlattensFragments(t *testing.T) {
	f := newFixture(t)
	f.ingestText(t, "c", "alpha beta delta")
	query := strings.Repeat("alpha ", 100) + strings.Repeat("delta ", 100)

	got, err := f.svc.Retrieve(context.Background(), RetrieveRequest{Query: query, Collection: "c", NResults: 1})
	require.NoError(t, err)
	require.Greater(t, len(got), 1, "one result per query fragment")
	for _, g := range got {
		assert.Equal(t, "alpha beta delta", g, "duplicates across fragments are kept")
	}
}

func TestDeleteThenQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestText(t, "gone", "some text here")

	removed, err := f.svc.RemoveCollection(ctx, "gone", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, removed)
	_, ok := f.svc.Registry().Get("gone")
	assert.False(t, ok)

	_, err = f.svc.Retrieve(ctx, RetrieveRequest{Query: "text", Collection: "gone"})
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)

	_, err = f.svc.RemoveCollection(ctx, "gone", "")
	assert.NoError(t, err, "removing a missing collection is not an error")
}

func TestRemoveAllPolicy(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RemovePolicy = RemoveAll })
	ctx := context.Background()
	f.ingestText(t, "a", "first doc")
	f.ingestText(t, "b", "second doc")

	removed, err := f.svc.RemoveCollection(ctx, "ignored", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, removed)
	assert.Empty(t, f.svc.ListCollections())

	stored, err := f.svc.StoredCollections(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRemoveAllPolicy_IncludesUnregisteredCollections(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RemovePolicy = RemoveAll })
	ctx := context.Background()
	f.ingestText(t, "a", "first doc")
	f.ingestText(t, "b", "second doc")
	f.svc.Registry().Remove("b")

	removed, err := f.svc.RemoveCollection(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, removed)
}

func TestRemoveOneNeedsName(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RemoveCollection(context.Background(), " ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngest_OverwriteReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestText(t, "c", "old content one")
	f.ingestText(t, "c", "old content two")

	res, err := f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource("fresh start"), Collection: "c", Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, res.IDs)

	got, err := f.svc.Retrieve(ctx, RetrieveRequest{Query: "content", Collection: "c", NResults: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh start"}, got)
}

func TestIngest_ConcurrentAppendsYieldUniqueIDs(t *testing.T) {
	f := newFixture(t)
	const n = 10
	var wg sync.WaitGroup
	results := make(chan *IngestResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Ingest(context.Background(), IngestRequest{
				Source:     domain.TextSource(fmt.Sprintf("document %d", i)),
				Collection: "shared",
			})
			assert.NoError(t, err)
			results <- res
		}(i)
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for r := range results {
		for _, id := range r.IDs {
			assert.False(t, seen[id])
			seen[id] = true
		}
	}
	assert.Len(t, seen, n)
}

func TestIngest_ValidationHappensBeforeIO(t *testing.T) {
	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"no source", IngestRequest{}},
		{"blank text", IngestRequest{Source: domain.TextSource("  \n ")}},
		{"blank file", IngestRequest{Source: domain.FileSource("")}},
		{"overlap larger than size", IngestRequest{Source: domain.URLSource("http://x"), ChunkSize: 10, ChunkOverlap: 20}},
		{"negative size", IngestRequest{Source: domain.URLSource("http://x"), ChunkSize: -1}},
		{"negative batch", IngestRequest{Source: domain.URLSource("http://x"), BatchSize: -4}},
		{"overlap with no-overlap", IngestRequest{Source: domain.URLSource("http://x"), ChunkOverlap: 5, NoOverlap: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Ingest(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Zero(t, f.loader.calls.Load())
			assert.Empty(t, f.svc.ListCollections())
		})
	}
}

func TestIngest_ChunkParamsDefaultIndependently(t *testing.T) {
	tests := []struct {
		name        string
		req         IngestRequest
		wantSize    int
		wantOverlap int
	}{
		{"both unset", IngestRequest{}, 500, 50},
		{"size only", IngestRequest{ChunkSize: 100}, 100, 50},
		{"overlap only", IngestRequest{ChunkOverlap: 100}, 500, 100},
		{"small size caps default overlap", IngestRequest{ChunkSize: 30}, 30, 15},
		{"no overlap", IngestRequest{ChunkSize: 100, NoOverlap: true}, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSize, gotOverlap int
			f := newFixture(t, func(o *Options) {
				o.Chunkers = func(size, overlap int) (domain.Chunker, error) {
					gotSize, gotOverlap = size, overlap
					return RecursiveChunkers(size, overlap)
				}
			})
			req := tt.req
			req.Source = domain.TextSource(strings.Repeat("word ", 200))
			_, err := f.svc.Ingest(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, gotSize)
			assert.Equal(t, tt.wantOverlap, gotOverlap)
		})
	}
}

func TestIngest_SizeOnlyKeepsDefaultOverlap(t *testing.T) {
	f := newFixture(t)
	text := strings.Repeat("lorem ipsum dolor sit amet ", 37)
	ctx := context.Background()

	withOverlap, err := f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource(text), Collection: "a", ChunkSize: 100})
	require.NoError(t, err)
	without, err := f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource(text), Collection: "b", ChunkSize: 100, NoOverlap: true})
	require.NoError(t, err)
	assert.Greater(t, withOverlap.Chunks, without.Chunks)
}

func TestIngest_EmptyDocument(t *testing.T) {
	f := newFixture(t)
	f.loader.pages = nil
	_, err := f.svc.Ingest(context.Background(), IngestRequest{Source: domain.FileSource("empty.pdf"), Collection: "c"})
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
}

func TestIngest_LoaderErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.loader.err = fmt.Errorf("download: unexpected status 404 Not Found")
	_, err := f.svc.Ingest(context.Background(), IngestRequest{Source: domain.URLSource("http://x/doc.pdf")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSearch_CarriesPageMetadata(t *testing.T) {
	f := newFixture(t)
	f.loader.pages = []string{"first page about apples", "second page about oranges"}
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, IngestRequest{Source: domain.FileSource("fruit.pdf"), Collection: "fruit", ChunkSize: 30, NoOverlap: true})
	require.NoError(t, err)

	got, err := f.svc.Search(ctx, RetrieveRequest{Query: "oranges", Collection: "fruit", NResults: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].PageContent, "oranges")
	assert.Equal(t, 1, got[0].Metadata.Page)
	assert.Equal(t, "1", got[0].Metadata.ID)
}

func TestRetrieve_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Retrieve(ctx, RetrieveRequest{Query: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.Retrieve(ctx, RetrieveRequest{Query: "x", NResults: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngest_RegistryFirstWriterWinsAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource("a"), Collection: "c", Description: "first"})
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource("b"), Collection: "c", Description: "second"})
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource("c"), Collection: "c", Overwrite: true})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"c": "first"}, f.svc.ListCollections())

	var msgs []string
	for _, e := range f.hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, "new collection")
	assert.Contains(t, msgs, "appending to collection")
	assert.Contains(t, msgs, "overwriting collection")
}

func TestIngest_EmbeddingModelSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource("x"), EmbeddingModel: "alt"})
	require.NoError(t, err)
	assert.Equal(t, "alt", f.emb.ModelName())

	_, err = f.svc.Ingest(ctx, IngestRequest{Source: domain.TextSource("x"), EmbeddingModel: "nope"})
	assert.ErrorIs(t, err, embedding.ErrUnknownModel)
}

func TestIngestText_ForSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.IngestText(ctx, "current_session", "session", "User: hi\nAI: hello", "notes"))
	desc, ok := f.svc.Registry().Get("current_session")
	assert.True(t, ok)
	assert.Equal(t, "session", desc)

	stored, err := f.svc.StoredCollections(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"current_session"}, stored)
	stored, err = f.svc.StoredCollections(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

var _ SourceLoader = (*loader.Loader)(nil)
