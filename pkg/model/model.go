package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role labels a conversation participant.
type Role string

const (
	RoleAgent    Role = "Agent"
	RoleCustomer Role = "Customer"
)

// RoleAssigner maps a 0-based speaker index to a conversation role.
// The default policy assumes the first speaker (index 0) is the agent;
// that is a heuristic, not a guarantee, and callers with better metadata
// can substitute their own policy.
type RoleAssigner func(speakerIndex int) Role

// DefaultRoleAssigner labels speaker 0 as Agent and everyone else as Customer.
func DefaultRoleAssigner(speakerIndex int) Role {
	if speakerIndex == 0 {
		return RoleAgent
	}
	return RoleCustomer
}

// Phrase is one recognized phrase normalized from the raw transcription
// payload. SpeakerIndex is always 0-based regardless of whether the source
// carried a 1-based speaker number (diarization) or a 0-based channel
// number (stereo). ID is positional within the sorted phrase list, not a
// stable identity across runs.
type Phrase struct {
	ID           int     `json:"id"`
	Text         string  `json:"text"`
	SpeakerIndex int     `json:"speakerIndex"`
	Offset       string  `json:"offset"`
	OffsetTicks  float64 `json:"offsetInTicks"`
	Duration     string  `json:"duration"`
}

// ConversationItem is one role-labeled turn of the assembled conversation.
// JSON field names match the persisted record format.
type ConversationItem struct {
	ID            int    `json:"id"`
	Text          string `json:"display"`
	Role          Role   `json:"role"`
	ParticipantID int    `json:"participantId"`
	Duration      string `json:"duration"`
}

// ConversationRecord is the unit persisted to the transcription container,
// keyed by "{basename}.json". Phrases holds the conversation items as a
// JSON-encoded string, nested inside the record JSON.
type ConversationRecord struct {
	Source               string `json:"source"`
	TranscriptionID      string `json:"transcription_id"`
	TranscriptionURL     string `json:"transcription_url"`
	ConversationDuration string `json:"conversationDuration"`
	Conversation         string `json:"conversation"`
	Phrases              string `json:"phrases"`
}

// NewConversationRecord builds the persisted record, serializing the
// conversation items into the nested phrases field.
func NewConversationRecord(source, transcriptionID, transcriptionURL, duration, conversation string, items []ConversationItem) (*ConversationRecord, error) {
	phrases, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation items: %w", err)
	}

	return &ConversationRecord{
		Source:               source,
		TranscriptionID:      transcriptionID,
		TranscriptionURL:     transcriptionURL,
		ConversationDuration: duration,
		Conversation:         conversation,
		Phrases:              string(phrases),
	}, nil
}

// Items decodes the nested phrases field back into conversation items.
func (r *ConversationRecord) Items() ([]ConversationItem, error) {
	var items []ConversationItem
	if err := json.Unmarshal([]byte(r.Phrases), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation items: %w", err)
	}
	return items, nil
}

// StoredConversation is one row of the conversation catalog the indexer
// maintains for the downstream search layer.
type StoredConversation struct {
	ID               string    `json:"id" db:"id"`
	Source           string    `json:"source" db:"source"`
	TranscriptionID  string    `json:"transcription_id" db:"transcription_id"`
	TranscriptionURL string    `json:"transcription_url" db:"transcription_url"`
	Duration         string    `json:"duration" db:"duration"`
	Conversation     string    `json:"conversation" db:"conversation"`
	Phrases          string    `json:"phrases" db:"phrases"`
	RecordKey        string    `json:"record_key" db:"record_key"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
