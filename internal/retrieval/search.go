// Package retrieval turns a user query into a ranked evidence set.
package retrieval

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/internal/store"
	"github.com/sells-group/grounded-chat/pkg/openai"
)

// Config bounds a similarity search.
type Config struct {
	// Limit caps the number of returned fragments. Default: 10.
	Limit int
	// MinSimilarity is the exclusive similarity floor. Default: 0.55.
	MinSimilarity float64
}

// DefaultConfig returns the standard retrieval bounds.
func DefaultConfig() Config {
	return Config{
		Limit:         10,
		MinSimilarity: 0.55,
	}
}

// Result is a ranked evidence set plus the embedding spend that produced it.
type Result struct {
	Fragments       []model.EvidenceFragment
	EmbeddingTokens int
}

// Searcher embeds queries and ranks stored fragments against them.
type Searcher struct {
	embedder openai.Client
	store    store.Store
	cfg      Config
}

// NewSearcher creates a Searcher.
func NewSearcher(embedder openai.Client, st store.Store, cfg Config) *Searcher {
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.55
	}
	return &Searcher{embedder: embedder, store: st, cfg: cfg}
}

// Search embeds the query text and returns the fragments whose cosine
// similarity strictly exceeds the floor, descending, at most Limit. An
// embedding or store failure is fatal to the caller's turn; there is no
// degraded retrieval.
func (s *Searcher) Search(ctx context.Context, query string) (*Result, error) {
	if query == "" {
		return nil, eris.New("retrieval: empty query")
	}

	embedded, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: embed query")
	}

	fragments, err := s.store.SearchFragments(ctx, embedded.Vector, s.cfg.Limit, s.cfg.MinSimilarity)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: search fragments")
	}

	zap.L().Debug("retrieval: evidence ranked",
		zap.Int("fragments", len(fragments)),
		zap.Float64("min_similarity", s.cfg.MinSimilarity),
		zap.Int("limit", s.cfg.Limit),
	)

	return &Result{Fragments: fragments, EmbeddingTokens: embedded.Tokens}, nil
}
