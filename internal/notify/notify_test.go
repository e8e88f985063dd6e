package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/akashmahlaz/rockreach-sub000/pkg/email"
	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

func TestEmailChannelNotConfigured(t *testing.T) {
	channel := NewEmailChannel(email.NewSender(email.Config{}), logging.NewLogger())

	err := channel.Send(context.Background(), "x@example.com", "hi", "body")
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
}

func TestEmailChannelNilSender(t *testing.T) {
	channel := NewEmailChannel(nil, logging.NewLogger())

	err := channel.Send(context.Background(), "x@example.com", "hi", "body")
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
}

func TestEmailChannelRequiresRecipient(t *testing.T) {
	sender := email.NewSender(email.Config{Host: "localhost", Port: "25", From: "noreply@example.com"})
	channel := NewEmailChannel(sender, logging.NewLogger())

	if err := channel.Send(context.Background(), "", "hi", "body"); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}
