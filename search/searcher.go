package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

const (
	// DefaultLimit is the result count used when the caller passes <= 0.
	DefaultLimit = 10

	// DefaultMinSimilarity drops documents scoring below it.
	DefaultMinSimilarity float32 = 0.3

	// verbatimBoost is added to chunks containing every query word.
	verbatimBoost float32 = 0.3

	// candidateFactor widens the vector query so the verbatim boost can
	// lift documents from just outside the top results.
	candidateFactor = 3
)

// Result is one ranked chunk.
type Result struct {
	Document *core.VectorDocument
	Object   *core.Object // nil if the object has since been deleted
	Score    float32
}

// Searcher ranks embedded chunks against natural language queries.
type Searcher struct {
	vectors       storage.VectorStore
	objects       storage.ObjectRepository
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity sets the similarity floor for vector matches.
func WithMinSimilarity(minSimilarity float32) Option {
	return func(s *Searcher) error {
		if minSimilarity < -1 || minSimilarity > 1 {
			return fmt.Errorf("minimum similarity %v outside [-1, 1]", minSimilarity)
		}
		s.minSimilarity = minSimilarity
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	vectors storage.VectorStore,
	objects storage.ObjectRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if objects == nil {
		return nil, ErrObjectRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		vectors:       vectors,
		objects:       objects,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search returns up to limit chunks relevant to query, best first.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, query, limit, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, limit int, monitor SearchMonitor) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.vectors.FindSimilar(ctx, embedding, s.minSimilarity, limit*candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar documents", "err", err)
		return nil, fmt.Errorf("find similar documents: %w", err)
	}
	monitor.AfterSemanticSearch(matches)

	queryWords := significantWords(query)
	objects := make(map[core.ID]*core.Object)
	results := make([]*Result, 0, len(matches))
	for _, match := range matches {
		score := match.Score
		if newWordSet(match.Document.Content).containsAll(queryWords) {
			score += verbatimBoost
			monitor.VerbatimHit(match.Document)
		}

		objectID := match.Document.Metadata.ObjectId
		object, seen := objects[objectID]
		if !seen {
			object, err = s.objects.GetObject(ctx, objectID)
			if err != nil {
				s.logger.Warn("document references missing object", "documentId", match.Document.Id, "err", err)
				object = nil
			}
			objects[objectID] = object
		}

		results = append(results, &Result{
			Document: match.Document,
			Object:   object,
			Score:    score,
		})
	}

	slices.SortStableFunc(results, func(a, b *Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(results) > limit {
		results = results[:limit]
	}
	monitor.Finish(results)

	s.logger.Debug("search complete", "query", query, "candidates", len(matches), "results", len(results))
	return results, nil
}
