package channel

import "encoding/json"

// Bridge wire protocol. The bridge process owns the actual Zalo protocol
// (zca-js); this side only speaks JSON frames over a persistent WebSocket.

// BridgeInbound is a frame received from the bridge. The Type discriminator
// selects which fields are meaningful:
//
//	"message": SenderID, ThreadID, Content, MessageID, Timestamp, IsGroup
//	"status":  Status ("connected" | "disconnected")
//	"login":   Success, Error
//	"error":   Error
type BridgeInbound struct {
	Type      string          `json:"type"`
	SenderID  string          `json:"senderId,omitempty"`
	ThreadID  string          `json:"threadId,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or attachment object
	MessageID string          `json:"messageId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	IsGroup   bool            `json:"isGroup,omitempty"`
	Status    string          `json:"status,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// BridgeAttachment is the object form of a message's content field.
type BridgeAttachment struct {
	Type string `json:"type"` // "attachment"
	Href string `json:"href"`
}

// BridgeLogin carries the session credentials, sent as the first frame
// after every (re)connect.
type BridgeLogin struct {
	Type      string `json:"type"` // "login"
	Cookie    any    `json:"cookie"`
	IMEI      string `json:"imei"`
	UserAgent string `json:"userAgent"`
}

// BridgeSend is an outgoing reply frame.
type BridgeSend struct {
	Type string `json:"type"` // "send"
	To   string `json:"to"`
	Text string `json:"text"`
}

// BridgeTyping is a typing indicator frame, emitted periodically while a
// reply is being composed.
type BridgeTyping struct {
	Type string `json:"type"` // "typing"
	To   string `json:"to"`
}
