package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"ragmem/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// Collections use cosine distance and are namespaced by an optional prefix.
type Storage struct {
	url    string
	apiKey string
	prefix string
	client *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Prefix  string
	Timeout time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		prefix: cfg.Prefix,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Storage) collectionURL(collection string, suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.prefix+collection, suffix)
}

func (s *Storage) Exists(ctx context.Context, collection string) (bool, error) {
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(collection, ""), nil, nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Create(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL(collection, ""), body, nil)
	return err
}

func (s *Storage) Count(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "/points/count"), map[string]any{"exact": true}, &resp)
	if status == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, collection)
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Insert(ctx context.Context, collection string, docs []domain.StoredDocument) error {
	points := make([]map[string]any, len(docs))
	for i, d := range docs {
		id, err := strconv.ParseUint(d.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("qdrant needs numeric point ids, got %q", d.ID)
		}
		points[i] = map[string]any{
			"id":     id,
			"vector": d.Vector,
			"payload": map[string]any{
				"doc_id": d.ID,
				"text":   d.Text,
				"page":   d.Metadata.Page,
			},
		}
	}
	body := map[string]any{"points": points}
	status, err := s.do(ctx, http.MethodPut, s.collectionURL(collection, "/points?wait=true"), body, nil)
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, collection)
	}
	return err
}

func (s *Storage) Search(ctx context.Context, collection string, vector []float32, n int) ([]domain.Match, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        n,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []struct {
			Score   float64   `json:"score"`
			Vector  []float32 `json:"vector"`
			Payload struct {
				DocID string `json:"doc_id"`
				Text  string `json:"text"`
				Page  int    `json:"page"`
			} `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "/points/search"), req, &resp)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, collection)
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.Match{
			Document: domain.StoredDocument{
				ID:       r.Payload.DocID,
				Text:     r.Payload.Text,
				Vector:   r.Vector,
				Metadata: domain.Metadata{Page: r.Payload.Page},
			},
			Score: r.Score,
		})
	}
	return results, nil
}

func (s *Storage) Drop(ctx context.Context, collection string) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(collection, ""), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *Storage) List(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodGet, s.url+"/collections", nil, &resp); err != nil {
		return nil, err
	}
	var names []string
	for _, c := range resp.Result.Collections {
		if n, ok := strings.CutPrefix(c.Name, s.prefix); ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends body as JSON and decodes the response into out when given.
// The status code is returned alongside any error.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
