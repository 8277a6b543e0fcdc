package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callscribe/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	if err := logger.Init("error"); err != nil {
		panic(err)
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "test-key", "en-US", false, time.Millisecond)
	client.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}
	return client, server
}

func TestSubmit_ReturnsJobID(t *testing.T) {
	const jobID = "9f4f3f7e-6f9a-4288-ab1a-6a1c47b0b0a5"

	var gotBody transcriptionRequest
	var gotKey string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, transcriptionPath, r.URL.Path)
		gotKey = r.Header.Get(subscriptionKeyHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"self":"%s%s/%s"}`, "https://example.test", transcriptionPath, jobID)
	}))

	id, err := client.Submit(context.Background(), "https://store.test/landing/call.wav?sig=abc")
	require.NoError(t, err)
	assert.Equal(t, jobID, id)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, []string{"https://store.test/landing/call.wav?sig=abc"}, gotBody.ContentURLs)
	assert.True(t, gotBody.Properties.DiarizationEnabled)
	assert.Equal(t, "PT30M", gotBody.Properties.TimeToLive)
	assert.Equal(t, "en-US", gotBody.Locale)
	assert.Contains(t, gotBody.DisplayName, "call_center_")
}

func TestSubmit_StereoDisablesDiarization(t *testing.T) {
	var gotBody transcriptionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"self":"https://example.test/x/%s"}`, "9f4f3f7e-6f9a-4288-ab1a-6a1c47b0b0a5")
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "en-US", true, time.Millisecond)

	_, err := client.Submit(context.Background(), "https://audio")
	require.NoError(t, err)
	assert.False(t, gotBody.Properties.DiarizationEnabled)
}

func TestSubmit_NonGUIDJobID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"self":"https://example.test/transcriptions/not-a-guid"}`)
	}))

	_, err := client.Submit(context.Background(), "https://audio")

	var invalid *InvalidResponseError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "GUID")
}

func TestSubmit_ErrorShapedResponse(t *testing.T) {
	// An error payload with no self URI must never be accepted as success.
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"error":{"code":"InvalidRequest"}}`)
	}))

	_, err := client.Submit(context.Background(), "https://audio")

	var invalid *InvalidResponseError
	assert.ErrorAs(t, err, &invalid)
}

func TestSubmit_NonCreatedStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"denied"}`)
	}))

	_, err := client.Submit(context.Background(), "https://audio")

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusForbidden, transport.StatusCode)
}

func TestPollStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		terminal  bool
		succeeded bool
		failed    bool
	}{
		{name: "succeeded", status: "Succeeded", terminal: true, succeeded: true},
		{name: "failed", status: "Failed", failed: true},
		{name: "running", status: "Running"},
		{name: "not started", status: "NotStarted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"status":"%s"}`, tt.status)
			}))

			status, err := client.PollStatus(context.Background(), "job-1")

			if tt.failed {
				var jobFailed *JobFailedError
				require.ErrorAs(t, err, &jobFailed)
				assert.Equal(t, "job-1", jobFailed.JobID)
				assert.Contains(t, jobFailed.Body, "Failed")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.terminal, status.Terminal)
			assert.Equal(t, tt.succeeded, status.Succeeded)
		})
	}
}

func TestPollStatus_TransportError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.PollStatus(context.Background(), "job-1")

	var transport *TransportError
	assert.ErrorAs(t, err, &transport)
}

func TestWaitUntilDone_PollsToSuccess(t *testing.T) {
	statuses := []string{"NotStarted", "Running", "Succeeded"}
	var polls int

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"%s"}`, statuses[polls])
		polls++
	}))

	var sleeps int
	client.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		assert.Equal(t, time.Millisecond, d)
		return nil
	}

	err := client.WaitUntilDone(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	// The loop sleeps before every check, including the first.
	assert.Equal(t, 3, sleeps)
}

func TestWaitUntilDone_JobFailed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Failed","properties":{"error":"bad audio"}}`)
	}))
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	err := client.WaitUntilDone(context.Background(), "job-1")

	var jobFailed *JobFailedError
	require.ErrorAs(t, err, &jobFailed)
	assert.Contains(t, jobFailed.Body, "bad audio")
}

func TestWaitUntilDone_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Running"}`)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.WaitUntilDone(ctx, "job-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListResultFiles(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, transcriptionPath+"/job-1/files", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(subscriptionKeyHeader))
		fmt.Fprint(w, `{"values":[{"kind":"Transcription","links":{"contentUrl":"https://results.test/t.json"}}]}`)
	}))

	manifest, err := client.ListResultFiles(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, manifest.Values, 1)
	assert.Equal(t, "Transcription", manifest.Values[0].Kind)
}

func TestLocateTranscriptFile(t *testing.T) {
	manifest := &FileManifest{Values: []ResultFile{
		{Kind: "TranscriptionReport", Links: FileLinks{ContentURL: "https://results.test/report.json"}},
		{Kind: "Transcription", Links: FileLinks{ContentURL: "https://results.test/t.json"}},
	}}

	url, err := LocateTranscriptFile(manifest)
	require.NoError(t, err)
	assert.Equal(t, "https://results.test/t.json", url)
}

func TestLocateTranscriptFile_Missing(t *testing.T) {
	manifest := &FileManifest{Values: []ResultFile{
		{Kind: "TranscriptionReport"},
	}}

	_, err := LocateTranscriptFile(manifest)

	var invalid *InvalidResponseError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "transcription")
}

func TestFetchTranscription(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Content URLs are pre-signed; no subscription key must leak.
		assert.Empty(t, r.Header.Get(subscriptionKeyHeader))
		fmt.Fprint(w, `{
			"source": "https://store.test/landing/call.wav",
			"duration": "PT2M",
			"recognizedPhrases": [
				{"speaker": 1, "offset": "PT0S", "offsetInTicks": 0, "duration": "PT5S", "nBest": [{"display": "Hello."}]}
			]
		}`)
	}))

	raw, err := client.FetchTranscription(context.Background(), client.endpoint+"/results/t.json")
	require.NoError(t, err)
	assert.Equal(t, "https://store.test/landing/call.wav", raw.Source)
	assert.Equal(t, "PT2M", raw.Duration)
	require.Len(t, raw.RecognizedPhrases, 1)
	require.NotNil(t, raw.RecognizedPhrases[0].Speaker)
	assert.Equal(t, 1, *raw.RecognizedPhrases[0].Speaker)
	assert.Nil(t, raw.RecognizedPhrases[0].Channel)
}

func TestFetchTranscription_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.FetchTranscription(context.Background(), client.endpoint+"/results/gone.json")

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusNotFound, transport.StatusCode)
}

func TestJobStateString(t *testing.T) {
	assert.Equal(t, "submitted", JobSubmitted.String())
	assert.Equal(t, "polling", JobPolling.String())
	assert.Equal(t, "succeeded", JobSucceeded.String())
	assert.Equal(t, "failed", JobFailed.String())
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{Op: "poll", Err: cause}
	assert.ErrorIs(t, err, cause)
}
