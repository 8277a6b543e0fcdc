package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"callscribe/internal/config"
	"callscribe/internal/pipeline"
	"callscribe/internal/queue"
	"callscribe/internal/speech"
	"callscribe/internal/storage"
	"callscribe/internal/transcript"
	"callscribe/pkg/cache"
	"callscribe/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	flag.Parse()

	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting callscribe pipeline")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
		return
	}

	audioGlob := cfg.Pipeline.AudioGlob
	if flag.NArg() > 0 {
		audioGlob = flag.Arg(0)
	}
	if audioGlob == "" {
		logger.Fatal("No audio glob given (argument or AUDIO_GLOB)")
		return
	}

	paths, err := filepath.Glob(audioGlob)
	if err != nil {
		logger.Fatal("Invalid audio glob", zap.String("glob", audioGlob), zap.Error(err))
		return
	}
	if len(paths) == 0 {
		logger.Warn("No files matched", zap.String("glob", audioGlob))
		return
	}

	store, err := storage.NewBlobStore(
		cfg.Storage.Endpoint,
		cfg.Storage.Region,
		cfg.Storage.AccessKey,
		cfg.Storage.SecretKey,
	)
	if err != nil {
		logger.Fatal("Failed to initialize blob store", zap.Error(err))
		return
	}

	transcriber := speech.NewClient(
		cfg.Speech.Endpoint,
		cfg.Speech.SubscriptionKey,
		cfg.Speech.Locale,
		cfg.Speech.UseStereo,
		cfg.Speech.PollInterval,
	)

	// Broker and dedupe cache are optional; the pipeline runs standalone
	// without them.
	var publisher pipeline.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
			return
		}
		defer rabbitMQ.Close()
		publisher = rabbitMQ
	}

	var dedupe cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 30*24*time.Hour)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
			return
		}
		defer redisCache.Close()
		dedupe = redisCache
	}

	orchestrator := pipeline.NewOrchestrator(
		store,
		transcriber,
		transcript.NewAssembler(nil),
		publisher,
		dedupe,
		pipeline.Config{
			LandingBucket:       cfg.Storage.LandingBucket,
			TranscriptionBucket: cfg.Storage.TranscriptionBucket,
			SignedURLTTL:        cfg.Storage.SignedURLTTL,
			JobTimeout:          cfg.Pipeline.JobTimeout,
			Concurrency:         cfg.Pipeline.Concurrency,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inputs := make([]pipeline.AudioInput, 0, len(paths))
	for _, path := range paths {
		input, err := pipeline.InputFromFile(path)
		if err != nil {
			logger.Error("Skipping unreadable input", zap.String("path", path), zap.Error(err))
			continue
		}
		inputs = append(inputs, input)
	}

	results, err := orchestrator.Run(ctx, inputs)
	if err != nil {
		logger.Fatal("Pipeline setup failed", zap.Error(err))
		return
	}

	var succeeded, skipped, failed int
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
		case res.Skipped:
			skipped++
		default:
			succeeded++
		}
	}

	// Per-input failures are logged, not fatal: the process exits zero
	// unless setup itself failed.
	logger.Info("Batch complete",
		zap.Int("succeeded", succeeded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed))
}
