package transport

import "context"

// Update is an inbound user interaction, normalized away from the concrete
// chat platform.
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// ChatTarget addresses an outbound delivery.
type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	// Silent delivers without an audible alert (used when the resolved
	// channel degrades to no sound).
	Silent bool
}

// Notification is one reminder on its way out through the notifier pipeline.
type Notification struct {
	Target   ChatTarget
	Text     string
	Priority int // 0 low .. 10 high
	Options  *SendOptions
}

// Adapter is the chat-platform boundary.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
