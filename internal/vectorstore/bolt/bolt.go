// Package bolt is the durable vector store backend: one bbolt file per
// storage path, one bucket per collection.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"ragmem/internal/domain"
	"ragmem/internal/vectorstore/vecmath"
)

// FileName is the database file created inside the storage path.
const FileName = "ragmem.db"

const formatVersion = "1"

const collectionPrefix = "c/"

var bucketManifest = []byte("manifest")

// Manifest identifies the embedding space a store was written with.
type Manifest struct {
	Model     string
	Dimension int
}

type record struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Page   int    `json:"page"`
	Vector []byte `json:"vector"`
}

// Storage is a bbolt-backed Backend.
type Storage struct {
	db *bbolt.DB
}

// Open opens or creates the store under dir. A store written with a different
// model or dimension fails with domain.ErrIncompatibleStore.
func Open(dir string, m Manifest) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(filepath.Join(dir, FileName), 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketManifest)
		if err != nil {
			return err
		}
		return checkManifest(b, m)
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

func checkManifest(b *bbolt.Bucket, m Manifest) error {
	want := map[string]string{
		"format":    formatVersion,
		"model":     m.Model,
		"dimension": strconv.Itoa(m.Dimension),
	}
	if b.Get([]byte("format")) == nil {
		for k, v := range want {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, k := range []string{"format", "model", "dimension"} {
		if got := string(b.Get([]byte(k))); got != want[k] {
			return fmt.Errorf("%w: %s is %q, expected %q", domain.ErrIncompatibleStore, k, got, want[k])
		}
	}
	return nil
}

func bucketName(collection string) []byte {
	return []byte(collectionPrefix + collection)
}

func notFound(collection string) error {
	return fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, collection)
}

func (s *Storage) Exists(_ context.Context, collection string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(bucketName(collection)) != nil
		return nil
	})
	return ok, err
}

func (s *Storage) Create(_ context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName(collection))
		return err
	})
}

func (s *Storage) Count(_ context.Context, collection string) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(collection))
		if b == nil {
			return notFound(collection)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Storage) Insert(_ context.Context, collection string, docs []domain.StoredDocument) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(collection))
		if b == nil {
			return notFound(collection)
		}
		for _, d := range docs {
			data, err := json.Marshal(record{
				ID:     d.ID,
				Text:   d.Text,
				Page:   d.Metadata.Page,
				Vector: vecmath.EncodeVector(d.Vector),
			})
			if err != nil {
				return err
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Search(ctx context.Context, collection string, vector []float32, n int) ([]domain.Match, error) {
	var docs []domain.StoredDocument
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(collection))
		if b == nil {
			return notFound(collection)
		}
		return b.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			vec, err := vecmath.DecodeVector(r.Vector)
			if err != nil {
				return err
			}
			docs = append(docs, domain.StoredDocument{
				ID:       r.ID,
				Text:     r.Text,
				Vector:   vec,
				Metadata: domain.Metadata{Page: r.Page},
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return vecmath.Rank(docs, vector, n), nil
}

func (s *Storage) Drop(_ context.Context, collection string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(bucketName(collection))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (s *Storage) List(context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			if n, ok := strings.CutPrefix(string(name), collectionPrefix); ok {
				names = append(names, n)
			}
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func (s *Storage) Close() error {
	return s.db.Close()
}
