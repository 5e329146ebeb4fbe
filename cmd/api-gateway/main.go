package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logo-forge/internal/catalog"
	"logo-forge/internal/config"
	"logo-forge/internal/handler"
	"logo-forge/internal/history"
	"logo-forge/internal/logging"
	"logo-forge/internal/processor"
	"logo-forge/internal/progress"
	"logo-forge/internal/provider"
	"logo-forge/internal/queue/rabbitmq"
	"logo-forge/internal/repository"
	"logo-forge/internal/storage/local"
	minioclient "logo-forge/internal/storage/minio"
	"logo-forge/internal/workflow"
	redisclient "logo-forge/pkg/database/redis"
	"logo-forge/pkg/security"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting API Gateway...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logWriter, logFile, err := logging.Setup(cfg.LogsDir)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := local.NewStore(cfg.OutputDir)
	if err != nil {
		log.Fatalf("Failed to open image store: %v", err)
	}

	deps := handler.Deps{
		Defaults: workflow.Defaults{RemoveBackground: cfg.RemoveBackground, CreateICO: cfg.CreateICO},
		LogsDir:  cfg.LogsDir,
	}

	if cfg.MinioEndpoint != "" {
		log.Println("Connecting to Minio...")
		minioClient, err := minioclient.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("Failed to connect to Minio: %v", err)
		}
		store.SetMirror(minioClient)
		deps.Links = minioClient
	}

	var progressBackend progress.Backend = progress.NewFileBackend(cfg.ProgressFile)
	if cfg.RedisURL != "" {
		log.Println("Connecting to Redis...")
		redisClient, err := redisclient.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		progressBackend = progress.NewRedisBackend(redisClient, cfg.ProgressKey)
		deps.Results = redisClient
	}
	deps.Progress = progress.NewStore(progressBackend)

	if cfg.RabbitMQURL != "" {
		log.Println("Connecting to RabbitMQ...")
		rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbitClient.Close()
		deps.Queue = rabbitClient
	}

	log.Printf("Opening %s history ledger...", cfg.HistoryDriver)
	recorder, err := history.Open(ctx, cfg.HistoryDriver, cfg.SQLitePath, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to open history: %v", err)
	}
	defer recorder.Close()
	deps.History = recorder

	deps.Catalog, err = catalog.New(cfg.ConfigDir, cfg.ModelsFile)
	if err != nil {
		log.Fatalf("Failed to load model catalog: %v", err)
	}

	deps.Registry = provider.FromConfig(provider.Settings{
		Keys:         cfg.APIKeys(),
		Timeout:      cfg.ProviderTimeout,
		MaxRetries:   cfg.MaxRetries,
		RateInterval: cfg.RateInterval,
	})
	if available := deps.Registry.Available(); len(available) == 0 {
		log.Println("Warning: no generation provider configured, workflows will fail to start")
	} else {
		log.Printf("Generation providers: %v", available)
	}

	deps.Processor = processor.NewService(store,
		processor.NewChromaKeyRemover(cfg.BackgroundTolerance),
		processor.NewICOConverter(cfg.ICOSizes))
	deps.Repository = repository.New(store)
	deps.Engine = workflow.New(workflow.Options{
		Progress:   deps.Progress,
		Store:      store,
		Generators: deps.Registry,
		Processor:  deps.Processor,
		History:    recorder,
		MaxWorkers: cfg.MaxWorkers,
		ImageSize:  cfg.DefaultSize,
	})

	if jwksURL := cfg.JWKSURL(); jwksURL != "" {
		log.Println("Enabling Keycloak authentication...")
		auth, stop, err := security.AuthMiddleware(jwksURL, cfg.KeycloakClientID)
		if err != nil {
			log.Fatalf("Failed to initialize auth: %v", err)
		}
		defer stop()
		deps.Auth = auth
	}

	log.Println("✓ Successfully initialized all services")

	// Access lines go to stdout only; generation.log is what GET /logs serves.
	router := gin.New()
	router.Use(handler.AccessLog(os.Stdout), gin.RecoveryWithWriter(logWriter))
	handler.NewHandler(deps).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Printf("API Gateway listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: server shutdown: %v", err)
	}
	if err := deps.Engine.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: %v", err)
	}

	log.Println("API Gateway stopped")
}
