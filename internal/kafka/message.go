package kafka

import "time"

// DispatchEvent is published after a newsletter dispatch finishes, so
// downstream consumers (analytics, audit) see the aggregate outcome without
// querying the delivery log.
type DispatchEvent struct {
	MessageID    int64     `json:"message_id"`
	TopicID      int64     `json:"topic_id"`
	State        string    `json:"state"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	CompletedAt  time.Time `json:"completed_at"`
}
