package speech

// transcriptionRequest is the job-creation request body.
type transcriptionRequest struct {
	ContentURLs []string                `json:"contentUrls"`
	Properties  transcriptionProperties `json:"properties"`
	Locale      string                  `json:"locale"`
	DisplayName string                  `json:"displayName"`
}

type transcriptionProperties struct {
	DiarizationEnabled bool   `json:"diarizationEnabled"`
	TimeToLive         string `json:"timeToLive"`
}

// createResponse carries the self-referential resource URI whose trailing
// path segment is the job id.
type createResponse struct {
	Self string `json:"self"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Status is the outcome of one poll.
type Status struct {
	Terminal  bool
	Succeeded bool
}

// FileManifest lists the output files of a finished job.
type FileManifest struct {
	Values []ResultFile `json:"values"`
}

type ResultFile struct {
	Kind  string    `json:"kind"`
	Links FileLinks `json:"links"`
}

type FileLinks struct {
	ContentURL string `json:"contentUrl"`
}

// RawTranscription is the transcript result payload fetched from the
// pre-signed content URL.
type RawTranscription struct {
	Source            string      `json:"source"`
	Duration          string      `json:"duration"`
	RecognizedPhrases []RawPhrase `json:"recognizedPhrases"`
}

// RawPhrase is one recognition event. Exactly one of Speaker (1-based,
// diarization mode) or Channel (0-based, stereo mode) is set; records
// carrying neither are malformed.
type RawPhrase struct {
	Speaker       *int    `json:"speaker,omitempty"`
	Channel       *int    `json:"channel,omitempty"`
	Offset        string  `json:"offset"`
	OffsetInTicks float64 `json:"offsetInTicks"`
	Duration      string  `json:"duration"`
	NBest         []NBest `json:"nBest"`
}

// NBest is one ranked transcription hypothesis; the pipeline always takes
// the first (top-ranked) one.
type NBest struct {
	Confidence float64 `json:"confidence"`
	Lexical    string  `json:"lexical"`
	ITN        string  `json:"itn"`
	MaskedITN  string  `json:"maskedITN"`
	Display    string  `json:"display"`
}

// JobState tracks the wait loop's state machine.
type JobState int

const (
	JobSubmitted JobState = iota
	JobPolling
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobSubmitted:
		return "submitted"
	case JobPolling:
		return "polling"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	}
	return "unknown"
}
