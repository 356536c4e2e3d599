package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBody(t *testing.T) {
	got := FormatBody("Alice", "Go 1.24 is out.", "golang")

	want := "Hi Alice,\n\nGo 1.24 is out.\n\n---\nTopic: golang\n\nTo unsubscribe, please contact us."
	assert.Equal(t, want, got)
}

func TestFormatBodyEmptyBody(t *testing.T) {
	got := FormatBody("Bob", "", "news")

	assert.Contains(t, got, "Hi Bob,")
	assert.Contains(t, got, "Topic: news")
}
