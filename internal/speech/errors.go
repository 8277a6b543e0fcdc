package speech

import "fmt"

// TransportError is a network failure or an unexpected HTTP status from the
// transcription service or a result-content URL. It is not retried here;
// the orchestrator attributes it to the current input.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvalidResponseError is a well-formed transport response whose payload is
// structurally invalid: a non-GUID job id, a manifest without a
// transcription entry, or undecodable JSON.
type InvalidResponseError struct {
	Op     string
	Reason string
	Body   string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("%s: invalid response: %s", e.Op, e.Reason)
}

// JobFailedError means the service explicitly reported the transcription
// job as failed. Body carries the raw response for diagnostics.
type JobFailedError struct {
	JobID string
	Body  string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("transcription job %s failed: %s", e.JobID, e.Body)
}
