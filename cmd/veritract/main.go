// Command veritract runs the agreement analysis node: the HTTP API, the
// SQLite-backed job queue, and the pipeline workers that turn normalized
// documents into structure, clause matches, risk reports, and redlines.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/veritract/veritract/artifact"
	"github.com/veritract/veritract/clauselib"
	"github.com/veritract/veritract/dbopen"
	"github.com/veritract/veritract/embedding"
	"github.com/veritract/veritract/llm"
	"github.com/veritract/veritract/match"
	"github.com/veritract/veritract/observability"
	"github.com/veritract/veritract/pipeline"
	"github.com/veritract/veritract/playbook"
	"github.com/veritract/veritract/risk"
	"github.com/veritract/veritract/service"
	"github.com/veritract/veritract/structure"
	_ "modernc.org/sqlite"
)

func main() {
	configPath := flag.String("config", env("CONFIG", "veritract.yaml"), "path to the YAML config file")
	importPath := flag.String("import-library", "", "import a YAML clause library into the database and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Artifacts, queue, and clause library share one database.
	dataDB, err := dbopen.Open(filepath.Join(cfg.DataDir, "veritract.db"),
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(artifact.Schema),
		dbopen.WithSchema(service.QueueSchema),
		dbopen.WithSchema(clauselib.Schema))
	if err != nil {
		slog.Error("open data db", "error", err)
		os.Exit(1)
	}
	defer dataDB.Close()

	obsDB, err := dbopen.Open(filepath.Join(cfg.DataDir, "observability.db"),
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(observability.Schema))
	if err != nil {
		slog.Error("open observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	events := observability.NewEventLogger(obsDB)

	// External signal clients. Both degrade gracefully when unconfigured.
	embedder := embedding.New(cfg.Embedding)
	model := llm.New(cfg.LLM)

	// Import mode: load an authored library, embed it, store it, exit.
	if *importPath != "" {
		clauses, err := clauselib.NewYAMLSource(*importPath).List(ctx)
		if err != nil {
			slog.Error("read library", "error", err)
			os.Exit(1)
		}
		if err := clauselib.NewSQLiteSource(dataDB).Import(ctx, embedder, clauses); err != nil {
			slog.Error("import library", "error", err)
			os.Exit(1)
		}
		slog.Info("library imported", "clauses", len(clauses), "path", *importPath)
		return
	}

	// Clause library: authored YAML file, or the database.
	var library clauselib.Source
	if cfg.LibraryPath != "" {
		library = clauselib.NewYAMLSource(cfg.LibraryPath)
	} else {
		library = clauselib.NewSQLiteSource(dataDB)
	}

	var pb *playbook.Playbook
	if cfg.PlaybookPath != "" {
		pb, err = playbook.Load(cfg.PlaybookPath)
		if err != nil {
			slog.Error("load playbook", "error", err)
			os.Exit(1)
		}
	}

	riskCfg := risk.Config{}
	if cfg.PatternsPath != "" {
		riskCfg.Patterns, err = risk.LoadPatterns(cfg.PatternsPath)
		if err != nil {
			slog.Error("load risk patterns", "error", err)
			os.Exit(1)
		}
	}
	scorer, err := risk.NewScorer(riskCfg)
	if err != nil {
		slog.Error("risk scorer", "error", err)
		os.Exit(1)
	}

	matcherCfg := cfg.Matcher
	matcherCfg.Embedder = embedder
	matcherCfg.Classifier = model

	store := artifact.NewSQLite(dataDB)
	runner, err := pipeline.NewRunner(pipeline.Config{
		Store:     store,
		Builder:   structure.NewBuilder(cfg.Structure),
		Matcher:   match.New(matcherCfg),
		Scorer:    scorer,
		Engine:    playbook.NewEngine(cfg.Engine),
		Library:   library,
		Playbook:  pb,
		Completer: model,
		Events:    events,
	})
	if err != nil {
		slog.Error("pipeline", "error", err)
		os.Exit(1)
	}

	queue := service.NewQueue(dataDB)

	// Workers.
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		worker := service.NewWorker(queue, runner, service.WorkerConfig{PollInterval: cfg.PollInterval})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("worker stopped", "error", err)
			}
		}()
	}

	// Retention cleanup, once a day.
	if cfg.RetentionDays.StageEvents > 0 || cfg.RetentionDays.HTTPLogs > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					err := observability.Cleanup(ctx, obsDB, observability.RetentionConfig{
						StageEventsDays: cfg.RetentionDays.StageEvents,
						HTTPLogsDays:    cfg.RetentionDays.HTTPLogs,
					})
					if err != nil {
						slog.Warn("retention cleanup", "error", err)
					}
				}
			}
		}()
	}

	// HTTP server.
	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: service.NewServer(service.ServerConfig{
			Queue:        queue,
			Store:        store,
			Events:       events,
			MaxBodyBytes: cfg.MaxBodyBytes,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "error", err)
		}
	}()

	slog.Info("veritract listening",
		"addr", cfg.ListenAddr,
		"workers", cfg.Workers,
		"embedding_model", embedder.Model(),
		"playbook", cfg.PlaybookPath != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server", "error", err)
		os.Exit(1)
	}

	wg.Wait()
	slog.Info("veritract stopped")
}
