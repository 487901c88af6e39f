package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragmem/internal/domain"
)

type recordingExtractor struct {
	seen    []string
	content []string
	err     error
}

func (r *recordingExtractor) Extract(_ context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r.seen = append(r.seen, path)
	r.content = append(r.content, string(data))
	if r.err != nil {
		return nil, r.err
	}
	return []string{"page one", "page two"}, nil
}

func newTestLoader(t *testing.T, ex Extractor) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	logger, _ := test.NewNullLogger()
	return New(Options{Extractor: ex, TempDir: dir, Logger: logger}), dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestLoader_Text(t *testing.T) {
	l, _ := newTestLoader(t, &recordingExtractor{})
	pages, err := l.Load(context.Background(), domain.TextSource("hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, pages)
}

func TestLoader_File(t *testing.T) {
	ex := &recordingExtractor{}
	l, _ := newTestLoader(t, ex)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	pages, err := l.Load(context.Background(), domain.FileSource(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"page one", "page two"}, pages)
	assert.Equal(t, []string{path}, ex.seen)
}

func TestLoader_URLDownloadsAndCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	ex := &recordingExtractor{}
	l, dir := newTestLoader(t, ex)
	pages, err := l.Load(context.Background(), domain.URLSource(srv.URL+"/doc.pdf"))
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	require.Len(t, ex.seen, 1)
	assert.Equal(t, dir, filepath.Dir(ex.seen[0]))
	assert.Equal(t, "%PDF-1.4 body", ex.content[0])
	assertDirEmpty(t, dir)
}

func TestLoader_URLExtractFailureStillCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("garbage"))
	}))
	defer srv.Close()

	boom := errors.New("bad pdf")
	l, dir := newTestLoader(t, &recordingExtractor{err: boom})
	_, err := l.Load(context.Background(), domain.URLSource(srv.URL))
	assert.ErrorIs(t, err, boom)
	assertDirEmpty(t, dir)
}

func TestLoader_URLHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ex := &recordingExtractor{}
	l, dir := newTestLoader(t, ex)
	_, err := l.Load(context.Background(), domain.URLSource(srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Empty(t, ex.seen)
	assertDirEmpty(t, dir)
}

func TestLoader_UnknownKind(t *testing.T) {
	l, _ := newTestLoader(t, &recordingExtractor{})
	_, err := l.Load(context.Background(), domain.Source{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPDFExtractor_RejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a pdf"), 0o600))
	_, err := PDFExtractor{}.Extract(context.Background(), path)
	assert.Error(t, err)
}

func TestPDFExtractor_MissingFile(t *testing.T) {
	_, err := PDFExtractor{}.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}
