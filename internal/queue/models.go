package queue

import "time"

// RecordEvent announces that a conversation record has been written to the
// transcription container and is ready for indexing.
type RecordEvent struct {
	RecordKey       string    `json:"record_key"`
	Source          string    `json:"source"`
	TranscriptionID string    `json:"transcription_id"`
	CreatedAt       time.Time `json:"created_at"`
}
