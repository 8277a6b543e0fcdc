package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"callscribe/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	transcriptionPath = "/speechtotext/v3.0/transcriptions"
	jobTimeToLive     = "PT30M"

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
)

// SleepFunc pauses between polls. Injectable so tests can run the wait
// loop without real waiting; the default respects context cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Client talks to the batch speech-to-text REST API.
type Client struct {
	endpoint        string
	subscriptionKey string
	locale          string
	useStereo       bool
	pollInterval    time.Duration

	client *http.Client
	sleep  SleepFunc
	now    func() time.Time
}

// NewClient creates a transcription service client. The endpoint is the
// service host ("eastus.api.cognitive.microsoft.com") or a full base URL.
func NewClient(endpoint, subscriptionKey, locale string, useStereo bool, pollInterval time.Duration) *Client {
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}

	return &Client{
		endpoint:        strings.TrimSuffix(endpoint, "/"),
		subscriptionKey: subscriptionKey,
		locale:          locale,
		useStereo:       useStereo,
		pollInterval:    pollInterval,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		sleep: sleepContext,
		now:   time.Now,
	}
}

// Submit creates a transcription job for the audio at audioURL and returns
// the server-issued job id. Diarization is enabled unless the client was
// configured for stereo audio; the two modes are mutually exclusive.
func (c *Client) Submit(ctx context.Context, audioURL string) (string, error) {
	reqBody := transcriptionRequest{
		ContentURLs: []string{audioURL},
		Properties: transcriptionProperties{
			DiarizationEnabled: !c.useStereo,
			TimeToLive:         jobTimeToLive,
		},
		Locale:      c.locale,
		DisplayName: fmt.Sprintf("call_center_%s", c.now().Format("2006-01-02 15:04:05")),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+transcriptionPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(subscriptionKeyHeader, c.subscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("Submitting transcription job", zap.String("audio_url", audioURL))

	respBody, err := c.do(req, "submit", http.StatusCreated)
	if err != nil {
		return "", err
	}

	var created createResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", &InvalidResponseError{Op: "submit", Reason: "undecodable body", Body: string(respBody)}
	}

	// The job id is the trailing path segment of the self URI. Anything
	// that does not parse as a GUID means the response is error-shaped.
	jobID := created.Self[strings.LastIndex(created.Self, "/")+1:]
	if _, err := uuid.Parse(jobID); err != nil {
		return "", &InvalidResponseError{Op: "submit", Reason: "transcription id is not a GUID", Body: string(respBody)}
	}

	logger.Info("Transcription job submitted", zap.String("job_id", jobID))

	return jobID, nil
}

// PollStatus performs a single status check. A "failed" status returns a
// JobFailedError carrying the raw body; any status other than "succeeded"
// or "failed" is non-terminal.
func (c *Client) PollStatus(ctx context.Context, jobID string) (Status, error) {
	respBody, err := c.get(ctx, fmt.Sprintf("%s%s/%s", c.endpoint, transcriptionPath, jobID), "poll", true)
	if err != nil {
		return Status{}, err
	}

	var status statusResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return Status{}, &InvalidResponseError{Op: "poll", Reason: "undecodable body", Body: string(respBody)}
	}

	switch strings.ToLower(status.Status) {
	case "succeeded":
		return Status{Terminal: true, Succeeded: true}, nil
	case "failed":
		return Status{Terminal: true}, &JobFailedError{JobID: jobID, Body: string(respBody)}
	default:
		return Status{}, nil
	}
}

// WaitUntilDone polls the job until it reaches a terminal state, sleeping
// the configured interval before each check. There is no built-in deadline;
// callers bound the wait through ctx.
func (c *Client) WaitUntilDone(ctx context.Context, jobID string) error {
	state := JobSubmitted

	for {
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return err
		}

		state = JobPolling
		status, err := c.PollStatus(ctx, jobID)
		if err != nil {
			state = JobFailed
			logger.Debug("Job state transition",
				zap.String("job_id", jobID),
				zap.Stringer("state", state))
			return err
		}

		if status.Terminal && status.Succeeded {
			state = JobSucceeded
			logger.Info("Transcription job succeeded", zap.String("job_id", jobID))
			return nil
		}

		logger.Debug("Transcription in progress",
			zap.String("job_id", jobID),
			zap.Stringer("state", state))
	}
}

// ListResultFiles fetches the output file manifest of a finished job.
func (c *Client) ListResultFiles(ctx context.Context, jobID string) (*FileManifest, error) {
	respBody, err := c.get(ctx, fmt.Sprintf("%s%s/%s/files", c.endpoint, transcriptionPath, jobID), "files", true)
	if err != nil {
		return nil, err
	}

	var manifest FileManifest
	if err := json.Unmarshal(respBody, &manifest); err != nil {
		return nil, &InvalidResponseError{Op: "files", Reason: "undecodable body", Body: string(respBody)}
	}

	return &manifest, nil
}

// LocateTranscriptFile finds the content URL of the manifest entry whose
// kind is "transcription" (case-insensitive).
func LocateTranscriptFile(manifest *FileManifest) (string, error) {
	for _, file := range manifest.Values {
		if strings.EqualFold(file.Kind, "transcription") {
			return file.Links.ContentURL, nil
		}
	}
	return "", &InvalidResponseError{Op: "files", Reason: "manifest has no transcription entry"}
}

// FetchTranscription downloads and decodes the transcript result payload.
// The URL is pre-signed and needs no subscription key.
func (c *Client) FetchTranscription(ctx context.Context, url string) (*RawTranscription, error) {
	respBody, err := c.get(ctx, url, "fetch", false)
	if err != nil {
		return nil, err
	}

	var raw RawTranscription
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, &InvalidResponseError{Op: "fetch", Reason: "undecodable body", Body: string(respBody)}
	}

	return &raw, nil
}

func (c *Client) get(ctx context.Context, url, op string, authed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if authed {
		req.Header.Set(subscriptionKeyHeader, c.subscriptionKey)
	}

	return c.do(req, op, http.StatusOK)
}

func (c *Client) do(req *http.Request, op string, wantStatus int) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode != wantStatus {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
