package domain

import "time"

// InboundMessage is a normalized message received from a channel.
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	Media     []string // local paths of fetched attachments
	MessageID string
	IsGroup   bool
	Timestamp time.Time
}

// OutboundMessage is a reply produced by the host application,
// consumed exactly once by the target channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}
