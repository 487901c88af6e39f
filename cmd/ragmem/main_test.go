package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragmem/internal/config"
	"ragmem/internal/embedding"
	"ragmem/internal/embedding/hashing"
	"ragmem/internal/service"
)

func writeConfig(t *testing.T, storeDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`
embedder:
  type: hashing
  dimension: 64
vector_store:
  type: bolt
  path: %s
log:
  level: error
`, storeDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_IngestQueryRemove(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	code, out, errOut := runCLI(t, "", "--config", cfg, "ingest", "--text", "Cats nap when they are content.", "-c", "pets")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "ingested 1 chunks into \"pets\"\n", out)

	code, out, errOut = runCLI(t, "Dogs bark at the mail truck.", "--config", cfg, "ingest", "--text", "-", "-c", "pets")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "ingested 1 chunks")

	code, out, errOut = runCLI(t, "", "--config", cfg, "query", "-c", "pets", "-n", "1", "cats", "nap")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "[1] Cats nap when they are content.\n", out)

	code, out, errOut = runCLI(t, "", "--config", cfg, "query", "-c", "pets", "-n", "2", "--json", "dogs bark")
	require.Equal(t, 0, code, errOut)
	var results []service.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].Metadata.ID)
	assert.Equal(t, "Dogs bark at the mail truck.", results[0].PageContent)

	code, out, _ = runCLI(t, "", "--config", cfg, "collections")
	require.Equal(t, 0, code)
	assert.Equal(t, "pets\n", out)

	code, out, _ = runCLI(t, "", "--config", cfg, "remove", "pets")
	require.Equal(t, 0, code)
	assert.Equal(t, "removed pets\n", out)

	code, _, errOut = runCLI(t, "", "--config", cfg, "query", "-c", "pets", "cats")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "collection not found")
}

func TestCLI_RemoveAll(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	for _, c := range []string{"a", "b"} {
		code, _, errOut := runCLI(t, "", "--config", cfg, "ingest", "--text", "doc "+c, "-c", c)
		require.Equal(t, 0, code, errOut)
	}
	code, out, errOut := runCLI(t, "", "--config", cfg, "remove", "--all")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "removed a\nremoved b\n", out)

	_, out, _ = runCLI(t, "", "--config", cfg, "collections")
	assert.Empty(t, out)
}

func TestCLI_UsageErrors(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	tests := []struct {
		name string
		args []string
	}{
		{"no source", []string{"ingest"}},
		{"two sources", []string{"ingest", "--text", "x", "--url", "http://example.com/a.pdf"}},
		{"query without text", []string{"query"}},
		{"remove without name", []string{"remove"}},
		{"empty text", []string{"ingest", "--text", "   "}},
		{"zero n-results", []string{"query", "-n", "0", "cats"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, "", append([]string{"--config", cfg}, tt.args...)...)
			assert.Equal(t, 1, code)
			assert.True(t, strings.HasPrefix(errOut, "ragmem: "), errOut)
		})
	}
}

func TestApplyChunkFlags(t *testing.T) {
	cfg := config.ChunkerConfig{ChunkSize: 500, ChunkOverlap: 50}
	tests := []struct {
		name       string
		req        service.IngestRequest
		sizeSet    bool
		overlapSet bool
		want       service.IngestRequest
	}{
		{"nothing set", service.IngestRequest{}, false, false, service.IngestRequest{ChunkSize: 500, ChunkOverlap: 50}},
		{"size only", service.IngestRequest{ChunkSize: 300}, true, false, service.IngestRequest{ChunkSize: 300, ChunkOverlap: 50}},
		{"size too small for configured overlap", service.IngestRequest{ChunkSize: 60}, true, false, service.IngestRequest{ChunkSize: 60}},
		{"overlap only", service.IngestRequest{ChunkOverlap: 80}, false, true, service.IngestRequest{ChunkSize: 500, ChunkOverlap: 80}},
		{"explicit zero overlap", service.IngestRequest{ChunkSize: 300}, true, true, service.IngestRequest{ChunkSize: 300, NoOverlap: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			applyChunkFlags(&req, cfg, tt.sizeSet, tt.overlapSet)
			assert.Equal(t, tt.want, req)
		})
	}
}

func TestCLI_ChunkSizeFlagKeepsOverlap(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	text := strings.Repeat("lorem ipsum dolor sit amet ", 37)

	code, withOverlap, errOut := runCLI(t, "", "--config", cfg, "ingest", "--text", text, "-c", "a", "--chunk-size", "100")
	require.Equal(t, 0, code, errOut)
	code, without, errOut := runCLI(t, "", "--config", cfg, "ingest", "--text", text, "-c", "b", "--chunk-size", "100", "--chunk-overlap", "0")
	require.Equal(t, 0, code, errOut)

	var n1, n2 int
	_, err := fmt.Sscanf(withOverlap, "ingested %d chunks", &n1)
	require.NoError(t, err)
	_, err = fmt.Sscanf(without, "ingested %d chunks", &n2)
	require.NoError(t, err)
	assert.Greater(t, n1, n2)
}

func TestModelFactory(t *testing.T) {
	cfg := &config.AppConfig{Embedder: config.EmbedderConfig{Type: "hashing", Dimension: 32}}
	factory := modelFactory(cfg, nil, nil)

	m, err := factory("")
	require.NoError(t, err)
	assert.Equal(t, hashing.Name, m.Name())
	assert.Equal(t, 32, m.Dimension())

	_, err = factory("text-embedding-3-small")
	assert.ErrorIs(t, err, embedding.ErrUnknownModel)
}

func TestModelFactory_CachesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	cfg.Embedder.Dimension = 16
	cfg.Embedder.Cache = &config.CacheConfig{Addr: mr.Addr(), Prefix: "test:"}
	a, err := newApp(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.embedder.Embed(context.Background(), []string{"hello world"}, 8)
	require.NoError(t, err)
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "test:hashing:"))
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	cfg := &config.AppConfig{}
	_, err := newApp(cfg, &bytes.Buffer{})
	assert.Error(t, err)
}
