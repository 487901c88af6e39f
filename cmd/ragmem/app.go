package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ragmem/internal/chunker"
	"ragmem/internal/config"
	"ragmem/internal/domain"
	"ragmem/internal/embedding"
	"ragmem/internal/embedding/cache"
	"ragmem/internal/embedding/hashing"
	"ragmem/internal/embedding/ollama"
	"ragmem/internal/embedding/openai"
	"ragmem/internal/loader"
	"ragmem/internal/logging"
	"ragmem/internal/registry"
	"ragmem/internal/service"
	"ragmem/internal/vectorstore"
	"ragmem/internal/vectorstore/bolt"
	"ragmem/internal/vectorstore/memory"
	"ragmem/internal/vectorstore/qdrant"
)

// app holds the assembled components for one process.
type app struct {
	cfg      *config.AppConfig
	log      *logrus.Logger
	embedder *embedding.Service
	stores   *vectorstore.Manager
	rag      *service.RAGService
	redis    *redis.Client
}

func newApp(cfg *config.AppConfig, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	var rdb redis.UniversalClient
	if c := cfg.Embedder.Cache; c != nil && c.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
		rdb = a.redis
	}
	factory := modelFactory(cfg, rdb, log)
	model, err := factory("")
	if err != nil {
		_ = a.closeRedis()
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}
	a.embedder = embedding.NewService(model, factory, cfg.EmbedTimeout(), log)
	a.stores = vectorstore.NewManager(storeOpener(cfg, a.embedder.ModelName), cfg.Embedder.Dimension, cfg.StoreTimeout(), log)

	storagePath := ""
	if cfg.VectorStore.Type == "bolt" {
		storagePath = cfg.VectorStore.Path
	}
	ld := loader.New(loader.Options{
		HTTPTimeout: time.Duration(cfg.Service.HTTPTimeoutSecs) * time.Second,
		TempDir:     cfg.Service.TempDir,
		Logger:      log,
	})
	a.rag = service.NewRAGService(ld, a.embedder, a.stores, registry.New(), service.Options{
		DefaultCollection: cfg.Service.DefaultCollection,
		NResults:          cfg.Service.NResults,
		BatchSize:         cfg.Embedder.BatchSize,
		StoragePath:       storagePath,
		RemovePolicy:      cfg.Service.RemovePolicy,
		Chunkers:          chunkers(cfg),
		Logger:            log,
	})
	return a, nil
}

func (a *app) closeRedis() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

// Close releases stores and the cache connection.
func (a *app) Close() error {
	return errors.Join(a.stores.Close(), a.closeRedis())
}

// modelFactory builds embedding models by name. The empty name selects the
// configured model. Every model is wrapped by the Redis cache when rdb is set.
func modelFactory(cfg *config.AppConfig, rdb redis.UniversalClient, log logrus.FieldLogger) embedding.Factory {
	ec := cfg.Embedder
	return func(name string) (embedding.Model, error) {
		var m embedding.Model
		switch {
		case name == hashing.Name || (name == "" && ec.Type == "hashing"):
			m = hashing.NewEmbedder(ec.Dimension)
		case ec.Type == "ollama":
			if name == "" {
				name = ec.Ollama.Model
			}
			om, err := ollama.New(ollama.Config{
				BaseURL:   ec.Ollama.BaseURL,
				Model:     name,
				Dimension: ec.Dimension,
				Timeout:   cfg.EmbedTimeout(),
			})
			if err != nil {
				return nil, err
			}
			m = om
		case ec.Type == "openai":
			if name == "" {
				name = ec.OpenAI.Model
			}
			client, err := openai.NewClient(openai.Config{
				BaseURL:   ec.OpenAI.BaseURL,
				APIKeyEnv: ec.OpenAI.APIKeyEnv,
				Model:     name,
				Dimension: ec.Dimension,
				Timeout:   cfg.EmbedTimeout(),
			})
			if err != nil {
				return nil, err
			}
			m = client
		default:
			return nil, fmt.Errorf("%w: %q with %s embedder", embedding.ErrUnknownModel, name, ec.Type)
		}
		if rdb == nil {
			return m, nil
		}
		return cache.Wrap(m, rdb,
			cache.WithPrefix(ec.Cache.Prefix),
			cache.WithTTL(time.Duration(ec.Cache.TTLSecs)*time.Second),
			cache.WithLogger(log),
		), nil
	}
}

// storeOpener maps a storage path to a backend. For qdrant a non-empty path
// replaces the configured collection prefix.
func storeOpener(cfg *config.AppConfig, modelName func() string) vectorstore.Opener {
	return func(path string) (vectorstore.Backend, error) {
		switch {
		case cfg.VectorStore.Type == "qdrant":
			q := cfg.VectorStore.Qdrant
			prefix := q.Prefix
			if path != "" {
				prefix = path
			}
			return qdrant.NewStorage(qdrant.Config{
				URL:     q.URL,
				APIKey:  q.APIKey,
				Prefix:  prefix,
				Timeout: time.Duration(q.TimeoutSecs) * time.Second,
			}), nil
		case path == "":
			return memory.NewStorage(), nil
		default:
			s, err := bolt.Open(path, bolt.Manifest{Model: modelName(), Dimension: cfg.Embedder.Dimension})
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
}

func chunkers(cfg *config.AppConfig) service.ChunkerFactory {
	if cfg.Chunker.Type != "sentence" {
		return service.RecursiveChunkers
	}
	per, overlap := cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences
	return func(int, int) (domain.Chunker, error) {
		return chunker.NewSentenceChunker(per, overlap), nil
	}
}
