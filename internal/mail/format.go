package mail

import "fmt"

// FormatBody renders the newsletter body for one recipient.
func FormatBody(recipientName, body, topicName string) string {
	return fmt.Sprintf(
		"Hi %s,\n\n%s\n\n---\nTopic: %s\n\nTo unsubscribe, please contact us.",
		recipientName,
		body,
		topicName,
	)
}
