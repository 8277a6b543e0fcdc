package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"callscribe/internal/queue"
	"callscribe/internal/speech"
	"callscribe/internal/storage"
	"callscribe/internal/transcript"
	"callscribe/pkg/cache"
	"callscribe/pkg/logger"
	"callscribe/pkg/model"
	"callscribe/pkg/resilience"

	"go.uber.org/zap"
)

// ObjectStore is the durable blob storage the pipeline reads and writes.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	SignedReadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Transcriber is the asynchronous transcription service.
type Transcriber interface {
	Submit(ctx context.Context, audioURL string) (string, error)
	WaitUntilDone(ctx context.Context, jobID string) error
	ListResultFiles(ctx context.Context, jobID string) (*speech.FileManifest, error)
	FetchTranscription(ctx context.Context, url string) (*speech.RawTranscription, error)
}

// Publisher announces finished records to the indexer.
type Publisher interface {
	PublishRecordReady(event *queue.RecordEvent) error
}

// AudioInput is one audio file to transcribe. Name is the sanitized
// basename and doubles as the input's stable identifier.
type AudioInput struct {
	Name string
	Data []byte
}

// InputFromFile reads an audio file into an AudioInput.
func InputFromFile(path string) (AudioInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AudioInput{}, fmt.Errorf("failed to read audio file: %w", err)
	}

	return AudioInput{
		Name: storage.SanitizeObjectName(path),
		Data: data,
	}, nil
}

// Result is the per-input outcome of a batch run.
type Result struct {
	Input     string
	JobID     string
	RecordKey string
	Skipped   bool
	Err       error
}

// Config holds the orchestration settings. SubmitBurst/SubmitInterval pace
// job submissions so a large batch cannot burst past the service's request
// limits.
type Config struct {
	LandingBucket       string
	TranscriptionBucket string
	SignedURLTTL        time.Duration
	JobTimeout          time.Duration
	Concurrency         int
	SubmitBurst         int
	SubmitInterval      time.Duration
}

// Orchestrator drives audio inputs through upload, job submission, polling,
// result retrieval, conversation assembly, and record persistence.
// Publisher and dedupe cache are optional; a nil value disables the step.
type Orchestrator struct {
	store       ObjectStore
	transcriber Transcriber
	assembler   *transcript.Assembler
	publisher   Publisher
	dedupe      cache.Cache
	cfg         Config

	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
}

func NewOrchestrator(store ObjectStore, transcriber Transcriber, assembler *transcript.Assembler, publisher Publisher, dedupe cache.Cache, cfg Config) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.SubmitBurst < 1 {
		cfg.SubmitBurst = 2
	}
	if cfg.SubmitInterval <= 0 {
		cfg.SubmitInterval = time.Second
	}
	if assembler == nil {
		assembler = transcript.NewAssembler(nil)
	}

	return &Orchestrator{
		store:       store,
		transcriber: transcriber,
		assembler:   assembler,
		publisher:   publisher,
		dedupe:      dedupe,
		cfg:         cfg,
		limiter:     resilience.NewRateLimiter(cfg.SubmitBurst, cfg.SubmitInterval),
		breaker:     resilience.NewCircuitBreaker(5, 30*time.Second),
	}
}

// Run processes the batch, one Result per input in input order. Inputs are
// independent: a failure is attributed to its input and the rest of the
// batch continues. The returned error covers setup only (bucket creation);
// per-input failures never abort the batch.
func (o *Orchestrator) Run(ctx context.Context, inputs []AudioInput) ([]Result, error) {
	for _, bucket := range []string{o.cfg.LandingBucket, o.cfg.TranscriptionBucket} {
		if err := o.store.EnsureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(inputs))
	sem := make(chan struct{}, o.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, input := range inputs {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, input AudioInput) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = o.processInput(ctx, input)
		}(i, input)
	}

	wg.Wait()

	for _, res := range results {
		if res.Err != nil {
			logger.Error("Input failed",
				zap.String("input", res.Input),
				zap.Error(res.Err))
		}
	}

	return results, nil
}

func (o *Orchestrator) processInput(ctx context.Context, input AudioInput) Result {
	res := Result{Input: input.Name}

	if o.alreadyProcessed(ctx, input.Name) {
		logger.Info("Skipping already processed input", zap.String("input", input.Name))
		res.Skipped = true
		return res
	}

	// A stuck or slow job must not wedge the rest of the batch.
	ctx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	logger.Info("Processing input", zap.String("input", input.Name))

	if err := o.store.Put(ctx, o.cfg.LandingBucket, input.Name, input.Data, audioContentType(input.Name)); err != nil {
		res.Err = fmt.Errorf("upload: %w", err)
		return res
	}

	audioURL, err := o.store.SignedReadURL(ctx, o.cfg.LandingBucket, input.Name, o.cfg.SignedURLTTL)
	if err != nil {
		res.Err = fmt.Errorf("signed url: %w", err)
		return res
	}

	if err := o.limiter.Wait(ctx); err != nil {
		res.Err = err
		return res
	}

	jobID, err := o.transcriber.Submit(ctx, audioURL)
	if err != nil {
		res.Err = fmt.Errorf("submit: %w", err)
		return res
	}
	res.JobID = jobID
	o.rememberJob(ctx, input.Name, jobID)

	if err := o.transcriber.WaitUntilDone(ctx, jobID); err != nil {
		res.Err = fmt.Errorf("wait: %w", err)
		return res
	}

	manifest, err := o.transcriber.ListResultFiles(ctx, jobID)
	if err != nil {
		res.Err = fmt.Errorf("list files: %w", err)
		return res
	}

	transcriptURL, err := speech.LocateTranscriptFile(manifest)
	if err != nil {
		res.Err = err
		return res
	}

	raw, err := o.transcriber.FetchTranscription(ctx, transcriptURL)
	if err != nil {
		res.Err = fmt.Errorf("fetch transcript: %w", err)
		return res
	}

	phrases, err := transcript.ExtractPhrases(raw)
	if err != nil {
		res.Err = err
		return res
	}

	items, conversation := o.assembler.Assemble(phrases)

	record, err := model.NewConversationRecord(raw.Source, jobID, transcriptURL, raw.Duration, conversation, items)
	if err != nil {
		res.Err = err
		return res
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		res.Err = fmt.Errorf("failed to marshal record: %w", err)
		return res
	}

	recordKey := input.Name + ".json"
	if err := o.store.Put(ctx, o.cfg.TranscriptionBucket, recordKey, recordJSON, "application/json"); err != nil {
		res.Err = fmt.Errorf("persist record: %w", err)
		return res
	}
	res.RecordKey = recordKey

	logger.Info("Conversation record written",
		zap.String("input", input.Name),
		zap.String("job_id", jobID),
		zap.String("record_key", recordKey))

	o.markProcessed(ctx, input.Name)
	o.announceRecord(record, recordKey)

	return res
}

func (o *Orchestrator) alreadyProcessed(ctx context.Context, name string) bool {
	if o.dedupe == nil {
		return false
	}
	exists, err := o.dedupe.Exists(ctx, cache.ProcessedInputCacheKey(name))
	if err != nil {
		logger.Warn("Dedupe check failed", zap.Error(err))
		return false
	}
	return exists
}

// rememberJob records the submitted job id so a failed input can be traced
// back to its job after the run.
func (o *Orchestrator) rememberJob(ctx context.Context, name, jobID string) {
	if o.dedupe == nil {
		return
	}
	if err := o.dedupe.Set(ctx, cache.JobCacheKey(name), jobID); err != nil {
		logger.Warn("Failed to cache job id", zap.Error(err))
	}
}

func (o *Orchestrator) markProcessed(ctx context.Context, name string) {
	if o.dedupe == nil {
		return
	}
	if err := o.dedupe.Set(ctx, cache.ProcessedInputCacheKey(name), true); err != nil {
		logger.Warn("Failed to mark input as processed", zap.Error(err))
	}
}

// announceRecord publishes a record-ready event. Publishing is best-effort:
// the record is already durable, so a broker outage only costs indexing
// freshness, and the breaker keeps a flapping broker from slowing the batch.
func (o *Orchestrator) announceRecord(record *model.ConversationRecord, recordKey string) {
	if o.publisher == nil {
		return
	}

	event := &queue.RecordEvent{
		RecordKey:       recordKey,
		Source:          record.Source,
		TranscriptionID: record.TranscriptionID,
		CreatedAt:       time.Now(),
	}

	err := o.breaker.Execute(func() error {
		return o.publisher.PublishRecordReady(event)
	})
	if err != nil {
		logger.Error("Failed to publish record event",
			zap.String("record_key", recordKey),
			zap.Error(err))
	}
}

func audioContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
