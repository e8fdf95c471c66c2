package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cicerone/internal/api"
	"cicerone/pkg/cache"
	"cicerone/pkg/config"
	"cicerone/pkg/creds"
	"cicerone/pkg/db"
	"cicerone/pkg/db/maintenance"
	"cicerone/pkg/geocode"
	"cicerone/pkg/llm"
	"cicerone/pkg/llm/deepseek"
	"cicerone/pkg/llm/gemini"
	"cicerone/pkg/llm/groq"
	"cicerone/pkg/llm/nvidia"
	"cicerone/pkg/llm/openai"
	"cicerone/pkg/llm/openrouter"
	"cicerone/pkg/llm/perplexity"
	"cicerone/pkg/logging"
	"cicerone/pkg/pipeline"
	"cicerone/pkg/places"
	"cicerone/pkg/probe"
	"cicerone/pkg/prompts"
	"cicerone/pkg/request"
	"cicerone/pkg/store"
	"cicerone/pkg/tracker"
	"cicerone/pkg/version"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "configs/cicerone.yaml", "Path to config file")
	listenAddr = flag.String("addr", "", "Listen address override (host:port)")
)

func main() {
	flag.Parse()

	// A .env file is optional; deployed environments set variables directly.
	_ = godotenv.Load()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *listenAddr != "" {
		appCfg.Server.Address = *listenAddr
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Cicerone Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg.Cache.PurgeOnStartup); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	tr := tracker.New()
	reqClient := request.New(st, tr, request.ClientConfig{
		Retries:   appCfg.Request.Retries,
		Timeout:   time.Duration(appCfg.Request.Timeout),
		BaseDelay: time.Duration(appCfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(appCfg.Request.Backoff.MaxDelay),
	})

	providers := buildProviders(ctx, appCfg, reqClient)

	promptMgr, err := prompts.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize prompt manager: %w", err)
	}

	geocoder := geocode.NewService(&appCfg.Geocoder)
	placesClient := places.NewClient(&appCfg.Places, reqClient)
	respCache := cache.NewResponseCache(st, appCfg.Cache.TTL(), appCfg.Cache.GridPrecision)

	pipe := pipeline.New(geocoder, respCache, placesClient, providers, promptMgr)

	if err := runStartupProbes(ctx, dbConn, providers, placesClient); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, appCfg, pipe, geocoder, st, tr, providers)
}

func initDB(appCfg *config.Config) (*db.DB, store.CacheStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn, appCfg.Cache.TTL()), nil
}

// buildProviders constructs every known adapter in fan-out order. Adapters
// without a configured key stay registered; a per-request user key can
// still activate them.
func buildProviders(ctx context.Context, cfg *config.Config, rc *request.Client) []llm.Provider {
	p := &cfg.Providers
	return []llm.Provider{
		openai.NewOpenAI(&p.OpenAI, rc),
		gemini.NewClient(ctx, &p.Gemini),
		groq.NewClient(&p.Groq, rc),
		nvidia.NewClient(&p.NVIDIA, rc),
		deepseek.NewClient(&p.DeepSeek, rc),
		perplexity.NewClient(&p.Perplexity, rc),
		openrouter.NewClient(&p.OpenRouter),
	}
}

func runStartupProbes(ctx context.Context, dbConn *db.DB, providers []llm.Provider, pl *places.Client) error {
	baseScope := creds.NewScope(nil)

	probes := []probe.Probe{
		{
			Name: "Database",
			Check: func(ctx context.Context) error {
				return dbConn.PingContext(ctx)
			},
			Critical: true,
		},
		{
			Name: "LLM Providers",
			Check: func(context.Context) error {
				var available []string
				for _, prov := range providers {
					if prov.IsAvailable(baseScope) {
						available = append(available, prov.Name())
					}
				}
				if len(available) == 0 {
					return fmt.Errorf("no provider has a key configured")
				}
				slog.Info("LLM providers ready", "providers", available)
				return nil
			},
			// A per-request user key can still activate a provider.
			Critical: false,
		},
		{
			Name: "Google Places",
			Check: func(context.Context) error {
				if !pl.Available() {
					return fmt.Errorf("no API key configured; enrichment disabled")
				}
				return nil
			},
			Critical: false,
		},
	}

	results := probe.Run(ctx, probes)
	return probe.AnalyzeResults(results)
}

func runServer(ctx context.Context, cfg *config.Config, pipe *pipeline.Pipeline, geocoder *geocode.Service, st store.CacheStore, tr *tracker.Tracker, providers []llm.Provider) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}

	srv := api.NewServer(cfg.Server.Address,
		api.NewRecommendationsHandler(pipe),
		api.NewGeocodeHandler(geocoder),
		api.NewCacheHandler(st),
		api.NewStatsHandler(tr, names),
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
