// Package embedding turns text into fixed-length vectors for semantic search.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"nexus/internal/config"
	"nexus/internal/services"
	"nexus/internal/services/llm"
)

const maxInputChars = 24000

// Client is the subset of the model client used for embeddings.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Service produces one vector per text.
type Service struct {
	client     Client
	dimensions int
}

// New wires the embeddings endpoint from configuration.
func New(cfg *config.Config) *Service {
	baseDelay, maxDelay := cfg.RetryBackoff()
	client := llm.NewClient(
		llm.Config(cfg.EmbeddingLLM()),
		llm.WithDimensions(cfg.Embedding.Dimensions),
		llm.WithRetryMaxAttempts(cfg.LLM.RetryAttempts),
		llm.WithRetryBackoff(baseDelay, maxDelay),
	)
	return NewWithClient(client, cfg.Embedding.Dimensions)
}

// NewWithClient builds a Service around any Client.
func NewWithClient(client Client, dimensions int) *Service {
	return &Service{client: client, dimensions: dimensions}
}

// Dimensions reports the configured vector size.
func (s *Service) Dimensions() int {
	return s.dimensions
}

// Embed returns the vector for text. Empty text is rejected.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "embedding", "embed", "empty text", nil)
	}
	vectors, err := s.client.Embed(ctx, []string{truncate(text)})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, services.Wrap(services.ErrExternalTool, "embedding", "embed", fmt.Sprintf("expected 1 vector, got %d", len(vectors)), nil)
	}
	vector := vectors[0]
	if s.dimensions > 0 && len(vector) != s.dimensions {
		return nil, services.Wrap(services.ErrExternalTool, "embedding", "embed",
			fmt.Sprintf("vector has %d dimensions, want %d", len(vector), s.dimensions), nil)
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, services.Wrap(services.ErrExternalTool, "embedding", "embed", "vector contains non-finite values", nil)
		}
	}
	return vector, nil
}

func truncate(text string) string {
	if len(text) <= maxInputChars {
		return text
	}
	cut := text[:maxInputChars]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
