// Command chenxuvox runs the Chenxu dialect corpus collection server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/chenxu-corpus/chenxuvox/internal/audio"
	"github.com/chenxu-corpus/chenxuvox/internal/config"
	"github.com/chenxu-corpus/chenxuvox/internal/corpus"
	"github.com/chenxu-corpus/chenxuvox/internal/dataset"
	"github.com/chenxu-corpus/chenxuvox/internal/health"
	"github.com/chenxu-corpus/chenxuvox/internal/httpapi"
	"github.com/chenxu-corpus/chenxuvox/internal/observe"
	"github.com/chenxu-corpus/chenxuvox/internal/recording"
	"github.com/chenxu-corpus/chenxuvox/pkg/textgen"
	"github.com/chenxu-corpus/chenxuvox/pkg/textgen/anyllm"
	openaigen "github.com/chenxu-corpus/chenxuvox/pkg/textgen/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chenxuvox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chenxuvox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("chenxuvox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "chenxuvox",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Database ──────────────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("failed to open database pool", "err", err)
		return 1
	}
	defer pool.Close()

	recStore := recording.NewPostgresStore(pool)
	if err := recStore.Migrate(ctx); err != nil {
		slog.Error("recording schema migration failed", "err", err)
		return 1
	}
	corpStore := corpus.NewPostgresStore(pool)
	if err := corpStore.Migrate(ctx); err != nil {
		slog.Error("corpus schema migration failed", "err", err)
		return 1
	}

	// ── Audio pipeline ────────────────────────────────────────────────────────
	ffmpeg := audio.NewFFmpeg(cfg.Audio.FFmpegPath, time.Duration(cfg.Audio.ToolTimeoutSeconds)*time.Second)
	pipeline, err := recording.NewPipeline(ffmpeg, ffmpeg, recStore, cfg.Audio.DataDir, metrics, logger)
	if err != nil {
		slog.Error("failed to initialise recording pipeline", "err", err)
		return 1
	}

	// ── Corpus service ────────────────────────────────────────────────────────
	generator, err := buildGenerator(cfg.Generation)
	if err != nil {
		slog.Error("failed to create generation provider", "err", err)
		return 1
	}
	corpusOpts := []corpus.Option{corpus.WithMetrics(metrics), corpus.WithLogger(logger)}
	if generator != nil {
		corpusOpts = append(corpusOpts, corpus.WithGenerator(generator))
		slog.Info("generation provider ready", "provider", generator.Name(), "model", cfg.Generation.Model)
	} else {
		slog.Warn("no generation provider configured; /api/corpus/generate is disabled")
	}
	corpusSvc := corpus.NewService(corpStore, recStore, corpusOpts...)

	if cfg.Corpus.SeedDir != "" {
		n, err := corpusSvc.ImportSeedDir(ctx, cfg.Corpus.SeedDir)
		if err != nil {
			slog.Error("seed corpus import failed", "err", err)
			return 1
		}
		slog.Info("seed corpus ready", "dir", cfg.Corpus.SeedDir, "new_prompts", n)
	}

	// ── HTTP servers ──────────────────────────────────────────────────────────
	healthHandler := health.New(
		health.Database(pool),
		health.FFmpeg(ffmpeg.Path()),
		health.DataDir(cfg.Audio.DataDir),
	)

	deps := httpapi.Deps{
		Pipeline:   pipeline,
		Recordings: recStore,
		Corpus:     corpusSvc,
		Exporter:   dataset.NewExporter(pool, cfg.Audio.DataDir, logger),
		Health:     healthHandler,
		Metrics:    metrics,
		Logger:     logger,
	}
	if cfg.Server.MetricsAddr == "" {
		deps.MetricsHTTP = promhttp.Handler()
	}
	api := httpapi.New(deps)

	apiServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api server listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := apiServer.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildGenerator creates the configured text-generation backend, or nil when
// generation is not configured. The native openai client is preferred for the
// "openai" provider; every other name goes through the any-llm bridge.
func buildGenerator(entry config.ProviderEntry) (textgen.Generator, error) {
	if entry.Name == "" {
		return nil, nil
	}

	if entry.Name == "openai" {
		var opts []openaigen.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaigen.WithBaseURL(entry.BaseURL))
		}
		return openaigen.New(entry.APIKey, entry.Model, opts...)
	}

	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
