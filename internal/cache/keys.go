package cache

import (
	"fmt"
	"strings"
)

// GET /api/subscribers/topic/{topicID}
// newsletter:subscribers:{topicID}
func SubscribersByTopicKey(topicID int64) string {
	return fmt.Sprintf("newsletter:subscribers:%d", topicID)
}

// GET /api/newsletters, /api/newsletters/topic/{topicID}, /api/newsletters/status/{state}
// newsletter:messages:topic={topicID|all}:state={state|all}
func MessageListKey(topicID int64, state string) string {
	topic := "all"
	if topicID > 0 {
		topic = fmt.Sprintf("%d", topicID)
	}
	s := strings.ToLower(strings.TrimSpace(state))
	if s == "" {
		s = "all"
	}
	return fmt.Sprintf("newsletter:messages:topic=%s:state=%s", topic, s)
}

// Tracks every message-list key so mutations can invalidate without SCAN.
func MessageKeysSetKey() string {
	return "newsletter:messages:keys"
}
