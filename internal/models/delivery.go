package models

import "time"

const (
	DeliveryOutcomeSuccess = "success"
	DeliveryOutcomeFailed  = "failed"
)

// DeliveryRecord is one row of the append-only delivery log: one send
// attempt for one (message, subscriber) pair. The recipient email is
// denormalized so the log stays meaningful if the subscriber changes later.
type DeliveryRecord struct {
	ID             int64     `json:"id"`
	MessageID      int64     `json:"message_id"`
	SubscriberID   int64     `json:"subscriber_id"`
	RecipientEmail string    `json:"recipient_email"`
	Outcome        string    `json:"outcome"`
	ErrorDetail    *string   `json:"error_detail"`
	AttemptedAt    time.Time `json:"attempted_at"`
}
