package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/asaskevich/EventBus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/talent-match/internal/catalog"
	"github.com/jonathan/talent-match/internal/db"
	"github.com/jonathan/talent-match/internal/extraction"
	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/ranking"
	"github.com/jonathan/talent-match/internal/scoring"
	"github.com/jonathan/talent-match/internal/server"
	"github.com/jonathan/talent-match/internal/server/ratelimit"
	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/taxonomy"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start an HTTP server that exposes the matching engine over REST.

Profiles, jobs, match records and the taxonomy are kept in PostgreSQL when
database.url (or DATABASE_URL) is set, and in memory otherwise.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (default from config)")
	cmd.Flags().String("db-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	cmd.Flags().Bool("sweep", false, "recompute stale match records in the background")
	c.bind(cmd.Flags(), "server.port", "port")
	c.bind(cmd.Flags(), "database.url", "db-url")
	c.bind(cmd.Flags(), "ranking.sweep.enabled", "sweep")
	return cmd
}

func (c *cli) openStore(ctx context.Context) (store.Store, error) {
	if c.cfg.Database.URL == "" {
		c.logger.Warn("database.url is not set, using the in-memory store")
		return store.NewMemory(), nil
	}
	database, err := db.Connect(ctx, c.cfg.Database.URL, c.cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

func (c *cli) serve(ctx context.Context) error {
	cfg := c.cfg
	log := c.logger

	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	seed, err := c.seed()
	if err != nil {
		return err
	}
	tax := taxonomy.New(log)
	bus := EventBus.New()
	cat := catalog.New(st, tax, normalize.New(), bus, catalog.WithLogger(log))
	if err := cat.LoadTaxonomy(ctx, seed); err != nil {
		return err
	}

	engine, err := scoring.New(cfg.Scoring)
	if err != nil {
		return fmt.Errorf("invalid scoring config: %w", err)
	}
	metrics := observability.NewMetrics()
	coord := ranking.New(st, tax, engine,
		ranking.WithLogger(log),
		ranking.WithMetrics(metrics),
		ranking.WithConcurrency(cfg.Ranking.Concurrency))
	if err := coord.Subscribe(bus); err != nil {
		return err
	}

	var sweeper *ranking.Sweeper
	if cfg.Ranking.Sweep.Enabled {
		sweeper, err = ranking.NewSweeper(coord, cfg.Ranking.Sweep.Schedule, cfg.Ranking.Sweep.Batch, cfg.Ranking.Sweep.Timeout, log)
		if err != nil {
			return err
		}
		sweeper.Start()
	}

	pipeline, closeLLM, err := c.buildPipeline(ctx, tax, metrics)
	if err != nil {
		return err
	}
	defer closeLLM()
	manager := extraction.NewManager(pipeline, cfg.Extraction.Manager(), log)

	deps := server.Dependencies{
		Catalog:     cat,
		Coordinator: coord,
		Extractions: manager,
		Limiter:     ratelimit.NewLimiter(&cfg.RateLimit),
		Metrics:     metrics,
		Logger:      log,
	}
	if cfg.Auth.Enabled {
		deps.Tokens = server.NewJWTService(cfg.Auth)
	}

	log.Info("starting match engine",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("postgres", cfg.Database.URL != ""),
		zap.Bool("auth", cfg.Auth.Enabled),
		zap.String("extraction_mode", string(pipeline.DefaultMode())),
		zap.Int64("taxonomy_version", tax.Version()))

	serveErr := server.New(cfg.Server, deps).Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	closeErr := manager.Close(shutdownCtx)
	if errors.Is(closeErr, context.DeadlineExceeded) {
		log.Warn("extractions still running at shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
		closeErr = nil
	}
	return errors.Join(serveErr, closeErr)
}
