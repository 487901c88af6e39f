package vectorstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager opens one Store per storage path and reuses it for later calls.
type Manager struct {
	mu        sync.Mutex
	stores    map[string]*Store
	open      Opener
	dimension int
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewManager returns a manager that opens backends with open.
func NewManager(open Opener, dimension int, timeout time.Duration, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		stores:    make(map[string]*Store),
		open:      open,
		dimension: dimension,
		timeout:   timeout,
		log:       log,
	}
}

// Store returns the store for path, opening it on first use.
func (m *Manager) Store(path string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[path]; ok {
		return s, nil
	}
	backend, err := m.open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector store %q: %w", path, err)
	}
	s := NewStore(backend, m.dimension, m.timeout, m.log.WithField("storage_path", path))
	m.stores[path] = s
	m.log.WithField("storage_path", path).Debug("vector store opened")
	return s, nil
}

// Close closes every opened store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for path, s := range m.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector store %q: %w", path, err))
		}
		delete(m.stores, path)
	}
	return errors.Join(errs...)
}
