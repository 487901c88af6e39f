package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ragmem/internal/domain"
)

// Service owns the active model and embeds chunks in batches.
// The model can be replaced between operations; a swap waits for in-flight
// Embed calls so a single call never mixes two models.
type Service struct {
	mu      sync.RWMutex
	model   Model
	factory Factory
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewService wraps model. factory may be nil when swapping is not supported.
// timeout bounds each model call; zero disables it.
func NewService(model Model, factory Factory, timeout time.Duration, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{model: model, factory: factory, timeout: timeout, log: log}
}

// ModelName returns the active model's name.
func (s *Service) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Name()
}

// Dimension returns the active model's vector size.
func (s *Service) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Dimension()
}

// Use makes the named model active for subsequent calls.
func (s *Service) Use(name string) error {
	if name == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.Name() == name {
		return nil
	}
	if s.factory == nil {
		return fmt.Errorf("%w: model %q cannot be loaded, no factory configured", domain.ErrInvalidInput, name)
	}
	m, err := s.factory(name)
	if err != nil {
		return fmt.Errorf("load embedding model %q: %w", name, err)
	}
	s.log.WithFields(logrus.Fields{"from": s.model.Name(), "to": m.Name(), "dimension": m.Dimension()}).
		Info("embedding model swapped")
	s.model = m
	return nil
}

// Embed returns one vector per text, in input order, calling the model with
// at most batchSize texts at a time.
func (s *Service) Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d] with %s: %w", start, end, s.model.Name(), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	vecs, err := s.model.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("model returned %d vectors for %d texts", len(vecs), len(batch))
	}
	if dim := s.model.Dimension(); dim > 0 {
		for i, v := range vecs {
			if len(v) != dim {
				return nil, fmt.Errorf("%w: vector %d has %d values, model declares %d",
					domain.ErrDimensionMismatch, i, len(v), dim)
			}
		}
	}
	return vecs, nil
}

// ErrUnknownModel is returned by factories for names they cannot build.
var ErrUnknownModel = errors.New("unknown embedding model")
