package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/clients"
	"github.com/nijaru/reelsmith/config"
	"github.com/nijaru/reelsmith/handlers/api"
	"github.com/nijaru/reelsmith/logger"
	"github.com/nijaru/reelsmith/pipeline"
	"github.com/nijaru/reelsmith/repository/sqlite"
	"github.com/nijaru/reelsmith/services/generation"
	"github.com/nijaru/reelsmith/services/recording"
	"github.com/nijaru/reelsmith/storage"
	"github.com/nijaru/reelsmith/validation"
	"github.com/nijaru/reelsmith/zoom"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	dbConfig := sqlite.DefaultDBConfig()
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.MaxIdleConnections = cfg.Database.MaxIdleConnections
	dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime

	db, err := sqlite.Open(ctx, cfg.Database.Path, dbConfig)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	repo := sqlite.NewRepository(db)

	// Initialize object storage
	store, filesDir, err := newStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize upstream clients
	scraper := clients.NewScraperClient(clientOptions(cfg, cfg.Services.ScraperURL, logger))
	llm := clients.NewLLMClient(clients.LLMOptions{
		Options: clients.Options{
			BaseURL: cfg.Services.LLMURL,
			APIKey:  cfg.Services.LLMAPIKey,
			Timeout: cfg.Services.CallTimeout,
			Logger:  logger,
		},
		Model:       cfg.Services.LLMModel,
		Temperature: cfg.Services.LLMTemperature,
	})
	author := clients.NewScriptAuthor(llm, cfg.Policy.FPS)
	codegen := clients.NewCodeGenerator(llm)

	renderOpts := clientOptions(cfg, cfg.Services.RenderURL, logger)
	renderOpts.Timeout = cfg.Services.RenderTimeout
	renderer := clients.NewRenderClient(renderOpts)

	cvOpts := clientOptions(cfg, cfg.Services.CVURL, logger)
	cvOpts.RequestsPerSecond = cfg.Recording.PollRequestsPerSecond
	cvOpts.Burst = cfg.Recording.PollBurst
	cv := clients.NewCVStatusClient(cvOpts)

	// Initialize recording coordinator and service
	frame := zoom.Frame{Width: cfg.Recording.FrameWidth, Height: cfg.Recording.FrameHeight}
	coordinator := recording.NewCoordinator(cv, repo, recording.CoordinatorConfig{
		PollInterval:      cfg.Recording.PollInterval,
		PollTimeout:       cfg.Services.CallTimeout,
		StaleAfter:        cfg.Recording.StaleAfter,
		RequestsPerSecond: cfg.Recording.PollRequestsPerSecond,
		Burst:             cfg.Recording.PollBurst,
		Frame:             frame,
		Zoom:              cfg.Policy.Zoom,
	}, logger)
	defer coordinator.Close()

	recordingService := recording.NewService(repo, store, coordinator, cv, recording.Config{
		Frame: frame,
		Zoom:  cfg.Policy.Zoom,
	}, logger)

	if _, err := recordingService.Resume(ctx); err != nil {
		logger.WithError(err).Warn("Failed to resume unfinished recordings")
	}

	// Initialize generation service
	stages := pipeline.NewStages(scraper, author, codegen, renderer, pipeline.Settings{
		FPS:             cfg.Policy.FPS,
		DefaultDuration: cfg.Policy.Duration,
		RenderFormat:    cfg.Pipeline.RenderFormat,
		SceneSeconds:    cfg.Policy.SceneSeconds,
		MinScenes:       cfg.Policy.MinScenes,
		MaxScenes:       cfg.Policy.MaxScenes,
		Beat:            cfg.Policy.Beat,
	})

	generationService := generation.NewService(
		stages,
		recordingService,
		repo,
		author,
		store,
		validation.NewValidator(cfg),
		generation.Config{ArchiveRuns: true},
		logger,
	)

	// Initialize server
	opts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithServices(generationService, recordingService),
		api.WithDB(db),
	}
	if filesDir != "" {
		opts = append(opts, api.WithFiles(filesDir))
	}
	server := api.NewServer(cfg, opts...)

	// Graceful shutdown setup
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if cfg.Debug {
			logger.Infof("Server starting on http://localhost:%s", cfg.ServerPort)
		}
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server error")
		}
	case sig := <-shutdownChan:
		logger.WithField("signal", sig.String()).Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
	}
}

func clientOptions(cfg *config.Config, baseURL string, logger *logrus.Logger) clients.Options {
	return clients.Options{
		BaseURL: baseURL,
		Timeout: cfg.Services.CallTimeout,
		Logger:  logger,
	}
}

// newStore returns the configured object store. The second result is the
// directory to serve under /files/, empty when objects live in a bucket.
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, string, error) {
	if cfg.Storage.Driver == "spaces" {
		store, err := storage.NewSpacesStore(ctx, storage.SpacesConfig{
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Region:        cfg.Storage.Region,
			Endpoint:      cfg.Storage.Endpoint,
			Bucket:        cfg.Storage.Bucket,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			PathStyle:     cfg.Storage.PathStyle,
		})
		return store, "", err
	}

	store, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.Root(), nil
}
