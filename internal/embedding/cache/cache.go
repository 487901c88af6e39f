package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ragmem/internal/embedding"
)

// DefaultPrefix namespaces cached vectors in a shared Redis.
const DefaultPrefix = "ragmem:emb:"

// Model memoizes another model's vectors in Redis keyed by model name and
// text digest. Redis failures are logged and the wrapped model is used.
type Model struct {
	next   embedding.Model
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logrus.FieldLogger
}

// Option configures a caching model.
type Option func(*Model)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(p string) Option { return func(m *Model) { m.prefix = p } }

// WithTTL sets an expiry on cached entries. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option { return func(m *Model) { m.ttl = ttl } }

// WithLogger sets the logger for cache failures.
func WithLogger(l logrus.FieldLogger) Option { return func(m *Model) { m.log = l } }

// Wrap returns next wrapped in a cache. A nil client disables caching.
func Wrap(next embedding.Model, client redis.UniversalClient, opts ...Option) *Model {
	m := &Model{next: next, client: client, prefix: DefaultPrefix, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Model) Name() string   { return m.next.Name() }
func (m *Model) Dimension() int { return m.next.Dimension() }

// Embed serves hits from Redis and embeds all misses in one call to the
// wrapped model.
func (m *Model) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.client == nil || len(texts) == 0 {
		return m.next.Embed(ctx, texts)
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = m.key(t)
	}

	out := make([][]float32, len(texts))
	vals, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		m.log.WithError(err).Warn("embedding cache lookup failed")
		vals = nil
	}
	var missIdx []int
	var missTexts []string
	for i := range texts {
		if i < len(vals) {
			if s, ok := vals[i].(string); ok {
				var v []float32
				if err := json.Unmarshal([]byte(s), &v); err == nil && len(v) == m.next.Dimension() {
					out[i] = v
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	fresh, err := m.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("model returned %d vectors for %d texts", len(fresh), len(missTexts))
	}
	pipe := m.client.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		data, err := json.Marshal(fresh[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], data, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		m.log.WithError(err).Warn("embedding cache store failed")
	}
	return out, nil
}

func (m *Model) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return m.prefix + m.next.Name() + ":" + hex.EncodeToString(sum[:])
}
