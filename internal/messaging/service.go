// Package messaging provides a pluggable delivery abstraction for patient
// conversations: Twilio's WhatsApp API for webhook-driven deployments and a
// direct Whatsmeow client for self-hosted ones.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/clinicbot/margot/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer for the responses channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel sends.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service is the message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier per the transport's rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends one message body to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins background processing (event handling, polling).
	Start(ctx context.Context) error

	// Stop stops background processing and closes channels.
	Stop() error

	// Responses returns the channel of incoming patient messages.
	Responses() <-chan models.Response
}
