// Package telegraph delivers QueryDesk approval events to chat platforms and
// email.
package telegraph

import "context"

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter owns the connection to one platform and posts outbound
// messages to it.
type Adapter interface {
	// Name identifies the platform in logs, e.g. "slack".
	Name() string

	// Connect establishes a connection to the platform.
	Connect(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// OutboundMessage represents a message to be sent to a platform.
type OutboundMessage struct {
	ChannelID  string           // target channel; adapters fall back to their default
	Recipients []string         // people to address directly (names as recorded on the request)
	Subject    string           // short summary, used as the email subject
	Text       string           // message text (platform-native formatting)
	Events     []FormattedEvent // structured event attachments
}

// FormattedEvent represents a QueryDesk event formatted for display.
type FormattedEvent struct {
	Title    string  // event headline (e.g. "OTC request approved")
	Body     string  // detail text
	Severity string  // "info", "warning", "error", "success"
	Color    string  // sidebar color hint (e.g. "#36a64f" for success)
	Fields   []Field // key-value metadata pairs
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}
