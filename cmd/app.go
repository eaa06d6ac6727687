package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xhad/recall/pkg/chunker"
	"github.com/xhad/recall/pkg/cluster"
	cfgPkg "github.com/xhad/recall/pkg/config"
	"github.com/xhad/recall/pkg/llm"
	"github.com/xhad/recall/pkg/search"
	"github.com/xhad/recall/pkg/store"
)

// app builds the components a command needs from the loaded config. Each is
// created on first use.
type app struct {
	config *cfgPkg.Config
	logger *slog.Logger

	store    *store.VectorStore
	embedder *llm.Embedder
}

func newApp(config *cfgPkg.Config, logger *slog.Logger) *app {
	return &app{config: config, logger: logger}
}

func (a *app) openStore(ctx context.Context) (*store.VectorStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	vs, err := store.NewWithConfig(ctx, a.config.StoreConfig(), store.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	a.store = vs
	return vs, nil
}

func (a *app) newEmbedder() (*llm.Embedder, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}
	emb, err := llm.NewEmbedderWithConfig(a.config.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.embedder = emb.WithLogger(a.logger)
	return a.embedder, nil
}

func (a *app) newChunker() (*chunker.Chunker, error) {
	c, err := chunker.NewWithConfig(a.config.ChunkerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}
	return c, nil
}

func (a *app) searchEngine(ctx context.Context) (*search.Engine, error) {
	vs, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := a.newEmbedder()
	if err != nil {
		return nil, err
	}
	return search.NewEngine(vs, emb, a.config.SearchConfig(), search.WithLogger(a.logger))
}

// clusterEngine wires a summarizer only when asked, so commands that never
// summarize do not need a reachable chat model.
func (a *app) clusterEngine(ctx context.Context, summarize bool) (*cluster.Engine, error) {
	vs, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	opts := []cluster.Option{cluster.WithLogger(a.logger)}
	if summarize {
		s, err := llm.NewSummarizerWithConfig(a.config.SummarizerConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
		}
		opts = append(opts, cluster.WithSummarizer(s))
	}
	return cluster.NewEngine(vs, a.config.ClusterConfig(), opts...)
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}
