package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callscribe/internal/config"
	"callscribe/internal/queue"
	"callscribe/internal/storage"
	"callscribe/pkg/logger"
	"callscribe/pkg/model"
	"callscribe/pkg/resilience"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// The indexer consumes record-ready events, loads the conversation record
// from the transcription container, and writes it into the Postgres catalog
// the search layer reads.
func main() {
	// Load .env file
	_ = godotenv.Load()

	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting callscribe indexer")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}

	if cfg.Postgres.DSN == "" {
		logger.Fatal("DATABASE_URL is required")
		return
	}
	if cfg.RabbitMQ.URL == "" {
		logger.Fatal("RABBITMQ_URL is required")
		return
	}

	db, err := storage.NewPostgresStorage(cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
		return
	}
	defer db.Close()

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

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		return
	}
	defer rabbitMQ.Close()

	indexer := &indexer{
		db:     db,
		store:  store,
		bucket: cfg.Storage.TranscriptionBucket,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := rabbitMQ.Consume(queue.QueueNameRecordReady, indexer.handleEvent); err != nil {
			logger.Error("Failed to consume messages", zap.Error(err))
			cancel()
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Indexer shutdown complete")
}

type indexer struct {
	db     *storage.PostgresStorage
	store  *storage.BlobStore
	bucket string
}

func (ix *indexer) handleEvent(body []byte) error {
	var event queue.RecordEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	logger.Info("Indexing record", zap.String("record_key", event.RecordKey))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// The record write and the event publish race slightly on eventually
	// consistent stores, so the fetch retries briefly.
	var data []byte
	err := resilience.Retry(ctx, resilience.DefaultPolicy(), func() error {
		var err error
		data, err = ix.store.Get(ctx, ix.bucket, event.RecordKey)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to load record %s: %w", event.RecordKey, err)
	}

	var record model.ConversationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to unmarshal record %s: %w", event.RecordKey, err)
	}

	conv := &model.StoredConversation{
		ID:               uuid.New().String(),
		Source:           record.Source,
		TranscriptionID:  record.TranscriptionID,
		TranscriptionURL: record.TranscriptionURL,
		Duration:         record.ConversationDuration,
		Conversation:     record.Conversation,
		Phrases:          record.Phrases,
		RecordKey:        event.RecordKey,
		CreatedAt:        time.Now(),
	}

	if err := ix.db.UpsertConversation(ctx, conv); err != nil {
		return err
	}

	logger.Info("Record indexed",
		zap.String("record_key", event.RecordKey),
		zap.String("transcription_id", record.TranscriptionID))

	return nil
}
