package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grounded-chat/internal/ingest"
	"github.com/sells-group/grounded-chat/internal/pipeline"
	"github.com/sells-group/grounded-chat/internal/retrieval"
	"github.com/sells-group/grounded-chat/internal/store"
	anthropicpkg "github.com/sells-group/grounded-chat/pkg/anthropic"
	"github.com/sells-group/grounded-chat/pkg/jina"
	openaipkg "github.com/sells-group/grounded-chat/pkg/openai"
)

// chatEnv holds the initialized store, clients, and pipeline shared by the
// serve, chat, and ingest commands.
type chatEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Ingestor *ingest.Ingestor
	Searcher *retrieval.Searcher
}

// Close releases resources held by the environment.
func (e *chatEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, API clients, pipeline, and ingestor. Callers
// should defer env.Close().
func initEnv(ctx context.Context) (*chatEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (GROUNDED_ANTHROPIC_KEY)")
	}
	if cfg.OpenAI.Key == "" {
		return nil, eris.New("openai API key is required (GROUNDED_OPENAI_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	embedder, err := openaipkg.NewClient(openaipkg.Config{
		APIKey:        cfg.OpenAI.Key,
		BaseURL:       cfg.OpenAI.BaseURL,
		Model:         cfg.OpenAI.EmbeddingModel,
		MaxInputRunes: cfg.OpenAI.MaxInputRunes,
		RatePerSecond: cfg.OpenAI.RatePerSecond,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))

	searcher := retrieval.NewSearcher(embedder, st, retrieval.Config{
		Limit:         cfg.Retrieval.Limit,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
	})
	ingestor := ingest.New(st, embedder, jinaClient, cfg.Ingest.ChunkSize)
	tools := pipeline.NewToolRegistry(st, ingestor, anthropicClient, cfg.Anthropic.TitleModel)

	p := pipeline.New(pipeline.Options{
		Model:               cfg.Anthropic.Model,
		TitleModel:          cfg.Anthropic.TitleModel,
		MaxTokens:           cfg.Anthropic.MaxTokens,
		CriticTemperature:   cfg.Pipeline.CriticTemperature,
		OptimistTemperature: cfg.Pipeline.OptimistTemperature,
		FactCheckRequired:   cfg.Pipeline.FactCheckRequired,
		EventBuffer:         cfg.Pipeline.EventBuffer,
	}, st, searcher, anthropicClient, tools)

	return &chatEnv{
		Store:    st,
		Pipeline: p,
		Ingestor: ingestor,
		Searcher: searcher,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "grounded.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
