package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	// InboundTypeOpen switches which peer's thread the client has open.
	InboundTypeOpen = "open"
	// InboundTypeTyping signals the client is typing to a peer.
	InboundTypeTyping = "typing"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameThread = "thread"
	EventNameTyping = "typing"
	EventNameNotice = "notice"
)

// OpenData selects the currently open conversation peer. An empty peer means
// no conversation is selected.
type OpenData struct {
	Peer string `json:"peer"`
}

// TypingData signals a keystroke burst toward a peer.
type TypingData struct {
	Peer string `json:"peer"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage carries one direct message to the client.
type EventMessage struct {
	ID             string `json:"id"`
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	Text           string `json:"text"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentKind string `json:"attachment_kind,omitempty"`
	Read           bool   `json:"read"`
	TS             int64  `json:"ts"`
}

// EventThread delivers the full ordered thread for the open peer. Realtime
// inserts are applied by re-fetching the ordered set, never by splicing.
type EventThread struct {
	Peer     string         `json:"peer"`
	Messages []EventMessage `json:"messages"`
}

// EventTyping reports a peer's typing state for the open conversation.
type EventTyping struct {
	User     string `json:"user"`
	IsTyping bool   `json:"is_typing"`
}

// EventNotice is a lightweight cross-cutting notice about a message from a
// sender other than the open peer.
type EventNotice struct {
	From    string `json:"from"`
	Preview string `json:"preview"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
