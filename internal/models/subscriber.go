package models

import "time"

// Subscriber is unique per (email, topic_id). Only active subscribers
// receive newsletters; unsubscribing flips the flag instead of deleting.
type Subscriber struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	TopicID      int64     `json:"topic_id"`
	Active       bool      `json:"active"`
	SubscribedAt time.Time `json:"subscribed_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
