// Package notify posts operational notices to Slack. An unconfigured
// notifier is a nil client and every call on it is a no-op, so callers
// never branch on whether notifications are enabled.
package notify

import (
	"log"

	"github.com/slack-go/slack"
)

// SlackNotifier posts plain text messages to one channel.
type SlackNotifier struct {
	api       *slack.Client
	channelID string
	logger    *log.Logger
}

// NewSlackNotifier constructs a notifier. Returns nil when token or
// channel is missing; a nil notifier drops every message.
func NewSlackNotifier(token, channelID string, logger *log.Logger) *SlackNotifier {
	if logger == nil {
		logger = log.Default()
	}
	if token == "" || channelID == "" {
		logger.Printf("notify: slack token or channel not configured, notifications disabled")
		return nil
	}
	return &SlackNotifier{
		api:       slack.New(token),
		channelID: channelID,
		logger:    logger,
	}
}

// Post sends one message. Delivery failure is logged, never returned;
// a notification must not fail the operation that triggered it.
func (n *SlackNotifier) Post(message string) {
	if n == nil || n.api == nil {
		return
	}
	_, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(message, false))
	if err != nil {
		n.logger.Printf("notify: slack post failed: %v", err)
	}
}
