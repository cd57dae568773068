package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quote-screener/internal/api"
	"quote-screener/internal/catalog"
	"quote-screener/internal/config"
	"quote-screener/internal/feed"
	"quote-screener/internal/ingestion"
	"quote-screener/internal/projection"
	"quote-screener/internal/screening"
	"quote-screener/internal/storage"
	chstore "quote-screener/internal/storage/clickhouse"
	"quote-screener/internal/storage/memory"
	pgstore "quote-screener/internal/storage/postgres"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		feedMode  string
		useMemory bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run ingestion, screening sessions and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("feed") {
				cfg.Feed.Mode = feedMode
			}
			if cmd.Flags().Changed("use-memory") {
				cfg.Storage.UseMemory = useMemory
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&feedMode, "feed", config.FeedModePoll, "quote feed: poll (mock) or stream (WebSocket)")
	cmd.Flags().BoolVar(&useMemory, "use-memory", true, "use in-memory storage instead of PostgreSQL/ClickHouse")
	return cmd
}

// backends holds the persistence chosen by the config.
type backends struct {
	catalog *catalog.Catalog
	archive storage.TickArchive
	close   func()
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	// Without ClickHouse only the newest ticks per symbol are kept
	b := &backends{
		archive: memory.NewTickArchive(memory.TickArchiveOptions{TicksPerSymbol: memory.DefaultTicksPerSymbol}),
		close:   func() {},
	}
	if cfg.Storage.UseMemory {
		c, err := loadCatalogFile(cfg)
		if err != nil {
			return nil, err
		}
		b.catalog = c
		return b, nil
	}

	var closers []func()
	b.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Catalog != "" {
		c, err := loadCatalogFile(cfg)
		if err != nil {
			return nil, err
		}
		b.catalog = c
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		c, err := catalog.LoadStore(ctx, pgstore.NewInstrumentStore(pool))
		if err != nil {
			b.close()
			return nil, err
		}
		b.catalog = c
	}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			b.close()
			return nil, err
		}
		closers = append(closers, func() { conn.Close() })
		b.archive = chstore.NewTickArchive(conn)
	}
	return b, nil
}

func serve(cfg *config.Config) error {
	logger := newLogger("server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer b.close()
	logger.Printf("Catalog loaded: %d instruments", b.catalog.Len())

	presets, err := loadPresets(cfg)
	if err != nil {
		return err
	}
	index, err := catalog.NewIndex(b.catalog)
	if err != nil {
		return fmt.Errorf("build search index: %w", err)
	}
	defer index.Close()

	store := memory.NewQuoteStore(memory.QuoteStoreOptions{StaleAfter: cfg.StaleAfter})
	logger.Printf("Quote store: %d instruments, stale after %s", b.catalog.Len(), store.StaleAfter())
	seeded, err := ingestion.WarmStart(ctx, b.archive, b.catalog, store)
	if err != nil {
		logger.Printf("Warm start skipped: %v", err)
	} else if seeded > 0 {
		logger.Printf("Warm start: seeded %d quotes from archive", seeded)
	}

	opts := ingestion.RunnerOptions{
		Adapter:       ingestion.NewAdapter(b.catalog, store),
		Store:         store,
		Archive:       b.archive,
		PollInterval:  cfg.Feed.PollInterval,
		FlushInterval: cfg.Storage.ArchiveFlushInterval,
		Logger:        newLogger("ingest"),
	}
	switch cfg.Feed.Mode {
	case config.FeedModeStream:
		cc := feed.DefaultClientConfig()
		cc.Token = cfg.Feed.Token
		cc.Logger = newLogger("feed")
		client, err := feed.Dial(ctx, cfg.Feed.Endpoint, &cc)
		if err != nil {
			return fmt.Errorf("connect feed: %w", err)
		}
		defer client.Close()

		keys := cfg.Feed.InstrumentKeys
		if len(keys) == 0 {
			keys = b.catalog.InstrumentKeys()
		}
		opts.StreamSource = ingestion.NewWSStreamSource(client, keys, opts.Logger)
	default:
		opts.PollSource = ingestion.NewMockPollSource(ingestion.MockPollSourceOptions{
			Instruments: b.catalog.Instruments(),
			Seed:        cfg.Feed.Seed,
			Volatility:  cfg.Feed.Volatility,
		})
	}
	runner := ingestion.NewRunner(opts)

	manager := screening.NewManager(screening.ManagerOptions{
		Universe:     b.catalog,
		Quotes:       store,
		HistoryLimit: cfg.Screening.HistoryLimit,
		MaxSessions:  cfg.Screening.MaxSessions,
		Logger:       newLogger("screener"),
	})

	srv := api.NewServer(api.Options{
		Manager:   manager,
		Projector: projection.NewProjector(store),
		Presets:   presets,
		Catalog:   b.catalog,
		Index:     index,
		Quotes:    store,
		Logger:    newLogger("api"),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("ingestion: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("screening: %w", err)
		}
	}()
	go func() {
		logger.Printf("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Printf("HTTP shutdown: %v", serr)
	}
	// Runner flushes the archive buffer before returning
	wg.Wait()
	close(done)

	stats := runner.Stats()
	logger.Printf("Shutdown complete: applied=%d stale=%d malformed=%d unknown=%d archived=%d",
		stats.Applied, stats.Stale, stats.Malformed, stats.Unknown, stats.Archived)
	return err
}
