// Package search ranks archived media by semantic similarity to a query.
package search

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"

	"nexus/internal/logging"
	"nexus/internal/services"
	"nexus/internal/store"
)

const (
	DefaultLimit         = 10
	MaxLimit             = 100
	DefaultMinSimilarity = 0.7
)

// Embedder converts the query into the same vector space as stored media.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one ranked hit.
type Result struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	AISummary  string   `json:"ai_summary"`
	Tags       []string `json:"tags"`
	Similarity float64  `json:"similarity"`
}

// Service answers semantic and tag queries.
type Service struct {
	store    *store.Store
	embedder Embedder
	logger   *slog.Logger
}

// New builds a search service.
func New(st *store.Store, embedder Embedder, logger *slog.Logger) *Service {
	return &Service{store: st, embedder: embedder, logger: logging.NewComponentLogger(logger, "search")}
}

// Match is a ranked item with its full row.
type Match struct {
	Item       *store.MediaItem
	Similarity float64
}

// Search embeds query and returns completed items whose cosine similarity is
// at least minSimilarity, best first. A non-positive limit means DefaultLimit.
func (s *Service) Search(ctx context.Context, query string, limit int, minSimilarity float64) ([]Result, error) {
	matches, err := s.Related(ctx, query, limit, minSimilarity)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			ID:         m.Item.ID,
			Title:      m.Item.Title,
			AISummary:  m.Item.AISummary,
			Tags:       m.Item.Tags,
			Similarity: math.Round(m.Similarity*1000) / 1000,
		})
	}
	return results, nil
}

// Related ranks completed items against query and keeps the best limit
// whose similarity reaches minSimilarity.
func (s *Service) Related(ctx context.Context, query string, limit int, minSimilarity float64) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "search", "query", "query is empty", nil)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListEmbeddedCompleted(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, limit)
	for _, item := range items {
		score := CosineSimilarity(vector, item.Embedding)
		if score < minSimilarity {
			continue
		}
		matches = append(matches, Match{Item: item, Similarity: score})
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(math.Round(b.Similarity*1000), math.Round(a.Similarity*1000)); c != 0 {
			return c
		}
		return strings.Compare(a.Item.ID, b.Item.ID)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	s.logger.Debug("search ranked",
		logging.Int("candidates", len(items)),
		logging.Int("results", len(matches)),
		logging.Float64("min_similarity", minSimilarity),
	)
	return matches, nil
}

// ByTag lists completed items carrying tag, newest first.
func (s *Service) ByTag(ctx context.Context, tag string, limit, offset int) ([]*store.MediaItem, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, services.Wrap(services.ErrValidation, "search", "tag", "tag is empty", nil)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListMedia(ctx, store.MediaFilter{
		Status: store.MediaCompleted,
		Tag:    tag,
		Limit:  min(limit, MaxLimit),
		Offset: offset,
	})
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
