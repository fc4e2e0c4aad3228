package main

import (
	"context"
	"fmt"

	"github.com/jonathan/talent-match/internal/extraction"
	"github.com/jonathan/talent-match/internal/llm"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/resilience"
	"github.com/jonathan/talent-match/internal/taxonomy"
)

// buildPipeline wires document sources, the heuristic extractor and, when an
// API key is configured, the Gemini extractor. The returned func releases the
// model client.
func (c *cli) buildPipeline(ctx context.Context, tax *taxonomy.Taxonomy, metrics *observability.Metrics) (*extraction.Pipeline, func(), error) {
	cfg := c.cfg.Extraction
	log := c.logger

	router := &extraction.Router{MaxBytes: cfg.MaxBytes}
	if cfg.DocumentRoot != "" {
		router.Local = extraction.NewLocalSource(cfg.DocumentRoot, cfg.MaxBytes)
	}
	if cfg.AllowRemote {
		router.HTTP = extraction.NewHTTPSource(extraction.HTTPOptions{MaxBytes: cfg.MaxBytes})
	}

	heuristic := extraction.NewHeuristicExtractor(func() []string { return tax.Snapshot().Terms() }, nil)
	opts := []extraction.Option{
		extraction.WithLogger(log),
		extraction.WithMetrics(metrics),
		extraction.WithVocabularyVersion(tax.Version),
	}

	release := func() {}
	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewClient(ctx, llm.DefaultConfig().WithModel(llm.TierLite, cfg.Model), cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create llm client: %w", err)
		}
		executor := resilience.NewExecutor(cfg.Resilience, log)
		opts = append(opts, extraction.WithLLM(extraction.NewLLMExtractor(client, llm.TierLite, executor, metrics, log)))
		release = func() { _ = client.Close() }
	} else if cfg.Mode != extraction.ModeHeuristic {
		log.Warn("no gemini api key, model extraction is unavailable")
	}

	return extraction.NewPipeline(router, heuristic, cfg.Config, opts...), release, nil
}
