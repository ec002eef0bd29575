package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	cacheTTL              = 24 * time.Hour
)

// EmbeddingCache stores cached embeddings keyed by text.
type EmbeddingCache struct {
	cache map[string]*CachedEmbedding
	mu    sync.RWMutex
}

// CachedEmbedding holds a cached embedding with expiration.
type CachedEmbedding struct {
	Vector    []float32
	CreatedAt time.Time
}

// EmbeddingService generates text embeddings for the memory index,
// with an in-process cache to avoid re-embedding identical fragments.
type EmbeddingService struct {
	client *openai.Client
	model  openai.EmbeddingModel
	cache  *EmbeddingCache
}

// NewEmbeddingService creates a new embedding service.
func NewEmbeddingService(apiKey, baseURL, model string) *EmbeddingService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &EmbeddingService{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
		cache:  &EmbeddingCache{cache: make(map[string]*CachedEmbedding)},
	}
}

// Embed generates an embedding for a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.getFromCache(text); ok {
		return vec, nil
	}

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	vec := resp.Data[0].Embedding
	s.putInCache(text, vec)
	return vec, nil
}

func (s *EmbeddingService) getFromCache(text string) ([]float32, bool) {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()
	cached, ok := s.cache.cache[text]
	if !ok || time.Since(cached.CreatedAt) > cacheTTL {
		return nil, false
	}
	return cached.Vector, true
}

func (s *EmbeddingService) putInCache(text string, vec []float32) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.cache[text] = &CachedEmbedding{Vector: vec, CreatedAt: time.Now()}
}
