package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/akashmahlaz/rockreach-sub000/pkg/email"
	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// ErrChannelNotConfigured is a recoverable condition: callers turn it into
// guidance for the user instead of failing the turn.
var ErrChannelNotConfigured = errors.New("outbound channel not configured")

// Channel delivers one outbound message to a recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, to, subject, body string) error
}

// EmailChannel sends messages over SMTP. An unconfigured sender reports
// ErrChannelNotConfigured rather than attempting delivery.
type EmailChannel struct {
	sender *email.Sender
	logger logging.Logger
}

func NewEmailChannel(sender *email.Sender, logger logging.Logger) *EmailChannel {
	return &EmailChannel{sender: sender, logger: logger}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, to, subject, body string) error {
	if c.sender == nil || !c.sender.IsConfigured() {
		return ErrChannelNotConfigured
	}
	if to == "" {
		return errors.New("recipient address is required")
	}
	if err := c.sender.SendMail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	c.logger.WithFields(logging.Fields{"to": to}).Info("Outbound email sent")
	return nil
}
