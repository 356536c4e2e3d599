package models

import "time"

const (
	MessageStateScheduled = "scheduled"
	MessageStateSent      = "sent"
	MessageStateFailed    = "failed"
	MessageStateCancelled = "cancelled"
)

// ValidMessageState reports whether s is one of the known lifecycle states.
func ValidMessageState(s string) bool {
	switch s {
	case MessageStateScheduled, MessageStateSent, MessageStateFailed, MessageStateCancelled:
		return true
	}
	return false
}

// Message is a scheduled newsletter. SentAt stays NULL until a dispatch
// finishes, so it is a pointer rather than a plain time.Time.
type Message struct {
	ID            int64      `json:"id"`
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	TopicID       int64      `json:"topic_id"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	State         string     `json:"state"`
	SentAt        *time.Time `json:"sent_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
