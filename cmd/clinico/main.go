// clinico - session-aware retrieval and generation service for clinical
// records. Entry point: serve (HTTP API + background refresh) and refresh
// (one-shot re-embed pass).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinico/clinico/internal/api"
	"github.com/clinico/clinico/internal/domain/embedding"
	"github.com/clinico/clinico/internal/domain/generate"
	"github.com/clinico/clinico/internal/domain/record"
	"github.com/clinico/clinico/internal/domain/refresh"
	"github.com/clinico/clinico/internal/domain/session"
	"github.com/clinico/clinico/internal/infra/config"
	"github.com/clinico/clinico/internal/infra/eventbus"
	"github.com/clinico/clinico/internal/infra/llm"
	"github.com/clinico/clinico/internal/infra/sqlite"
	"github.com/clinico/clinico/internal/logger"
	"github.com/clinico/clinico/internal/server"
	"github.com/clinico/clinico/internal/version"
	pkgauth "github.com/clinico/clinico/pkg/auth"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet(version.Name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config", "clinico.yaml", "Path to the config file")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}
	if *showHelp {
		printHelp(out)
		return 0
	}

	switch fs.Arg(0) {
	case "", "serve":
		return serve(*configPath, out)
	case "refresh":
		full := false
		for _, arg := range fs.Args()[1:] {
			if arg == "--full" {
				full = true
			}
		}
		return refreshOnce(*configPath, full, out)
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", fs.Arg(0)) //nolint:errcheck
		printHelp(out)
		return 2
	}
}

// serve wires the full service and blocks until SIGINT/SIGTERM.
func serve(configPath string, out io.Writer) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "config: %v\n", err) //nolint:errcheck
		return 1
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		logger.Log.Errorf("open database: %v", err)
		return 1
	}
	if err := sqlite.MigrateUp(db); err != nil {
		logger.Log.Errorf("migrate: %v", err)
		db.Close() //nolint:errcheck
		return 1
	}

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		logger.Log.Errorf("llm provider: %v", err)
		db.Close() //nolint:errcheck
		return 1
	}

	bus := eventbus.New()
	records := record.NewStore(db, bus)
	embeddings := embedding.NewStore(db, provider, buildIndex())

	// The index lives in process memory; reload persisted vectors so search
	// works before the first refresh pass.
	if loaded, err := embeddings.RebuildIndex(ctx); err != nil {
		logger.Log.Warnf("index rebuild failed, search degraded: %v", err)
	} else {
		logger.Log.WithField("vectors", loaded).Info("vector index rebuilt")
	}

	cache := session.NewCache(cfg.SessionTTL, cfg.SweepInterval)
	orchestrator := generate.NewOrchestrator(provider, cache)
	scheduler := refresh.NewScheduler(records, embeddings, bus, cfg.RefreshInterval, cfg.EntityTimeout)

	signer, err := pkgauth.NewTokenSigner(cfg.JWTSecret, pkgauth.DefaultTokenTTL)
	if err != nil {
		logger.Log.Errorf("token signer: %v", err)
		db.Close() //nolint:errcheck
		return 1
	}

	router := api.NewRouter(api.Deps{
		Signer:       signer,
		APIUser:      cfg.APIUser,
		APIPassHash:  cfg.APIPassHash,
		Orchestrator: orchestrator,
		Embeddings:   embeddings,
	})

	srvConfig := server.DefaultConfig()
	srvConfig.Host = cfg.HTTPHost
	srvConfig.Port = cfg.HTTPPort
	srv := server.NewServer(router, db, srvConfig)

	go cache.Run(ctx)
	go scheduler.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("server: %v", err)
			return 1
		}
		return 0
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("shutdown: %v", err)
		return 1
	}
	return 0
}

// refreshOnce runs a single refresh pass and exits. Used by cron-style
// deployments and for the manual full reset.
func refreshOnce(configPath string, full bool, out io.Writer) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "config: %v\n", err) //nolint:errcheck
		return 1
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		logger.Log.Errorf("open database: %v", err)
		return 1
	}
	defer db.Close() //nolint:errcheck
	if err := sqlite.MigrateUp(db); err != nil {
		logger.Log.Errorf("migrate: %v", err)
		return 1
	}

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		logger.Log.Errorf("llm provider: %v", err)
		return 1
	}

	// One-shot mode writes vectors to the database only; the serving process
	// rebuilds its in-memory index from there.
	records := record.NewStore(db, nil)
	embeddings := embedding.NewStore(db, provider, nil)
	scheduler := refresh.NewScheduler(records, embeddings, nil, cfg.RefreshInterval, cfg.EntityTimeout)

	report, err := scheduler.RunOnce(ctx, full)
	if err != nil {
		logger.Log.Errorf("refresh: %v", err)
		return 1
	}
	fmt.Fprintf(out, "refreshed %d/%d entities (%d failed)\n", //nolint:errcheck
		report.Succeeded, report.Total, report.Failed)
	if report.Failed > 0 {
		return 1
	}
	return 0
}

// buildProvider registers the configured providers and routes to the default.
func buildProvider(ctx context.Context, cfg config.Config) (llm.LLMProvider, error) {
	ollama := llm.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, cfg.ProviderTimeout)
	router := llm.NewRouter(map[string]llm.LLMProvider{"ollama": ollama}, cfg.LLMProvider)
	return router.Route(ctx)
}

// buildIndex provisions the in-memory vector index. A failure leaves the
// store in degraded mode (searches return empty) rather than aborting start.
func buildIndex() embedding.Index {
	index, err := embedding.NewChromemIndex()
	if err != nil {
		logger.Log.Warnf("vector index unavailable, search degraded: %v", err)
		return nil
	}
	return index
}

func printHelp(out io.Writer) {
	helpText := `clinico - session-aware retrieval and generation for clinical records

Usage:
  clinico [options] [command]

Options:
  --version        Show version information
  --help           Show this help message
  --config PATH    Config file path (default "clinico.yaml")

Commands:
  serve            Start the HTTP API and background refresh (default)
  refresh [--full] Run one refresh pass and exit; --full deletes all
                   embeddings before repopulating

Examples:
  clinico --version
  clinico serve
  clinico refresh --full`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}
