package mailer

import "context"

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Sender delivers a message to a recipient address. Delivery failures never
// roll back domain state; callers log and move on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
