package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribersByTopicKey(t *testing.T) {
	assert.Equal(t, "newsletter:subscribers:7", SubscribersByTopicKey(7))
}

func TestMessageListKey(t *testing.T) {
	assert.Equal(t, "newsletter:messages:topic=all:state=all", MessageListKey(0, ""))
	assert.Equal(t, "newsletter:messages:topic=3:state=all", MessageListKey(3, ""))
	assert.Equal(t, "newsletter:messages:topic=all:state=scheduled", MessageListKey(0, "scheduled"))
	assert.Equal(t, "newsletter:messages:topic=all:state=sent", MessageListKey(0, "  SENT "))
}
