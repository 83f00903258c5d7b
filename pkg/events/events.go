// Package events defines the transcript events that are published to Kafka.
package events

import (
	"time"

	"shopchat-go/internal/model"
)

// Type identifies what happened to a transcript.
type Type string

const (
	EntryAppended    Type = "entry_appended"
	FeedbackRecorded Type = "feedback_recorded"
)

// TranscriptEvent is one change of a user's transcript.
type TranscriptEvent struct {
	Type       Type                     `json:"type"`
	UserID     string                   `json:"user_id"`
	Entry      *model.ConversationEntry `json:"entry,omitempty"`
	EntryID    string                   `json:"entry_id,omitempty"`
	Feedback   model.Feedback           `json:"feedback,omitempty"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// Key returns the identifier used for partitioning and retry bookkeeping.
func (e TranscriptEvent) Key() string {
	if e.Entry != nil {
		return e.Entry.ID
	}
	return e.EntryID
}
