package http

import (
	"github.com/pixelfold/pixchat-server/internal/chat"
	"github.com/pixelfold/pixchat-server/internal/proto"
	"github.com/pixelfold/pixchat-server/internal/store"
)

// MessageResponse represents a message in REST responses.
type MessageResponse struct {
	ID             string `json:"id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Text           string `json:"text"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentKind string `json:"attachment_kind,omitempty"`
	Read           bool   `json:"read"`
	CreatedAt      string `json:"created_at"`
}

// ContactResponse represents an annotated contact in REST responses.
type ContactResponse struct {
	ID          string           `json:"id"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name,omitempty"`
	AvatarURL   string           `json:"avatar_url,omitempty"`
	LastMessage *MessageResponse `json:"last_message,omitempty"`
	Unread      int              `json:"unread"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func messageToResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Text:           m.Text,
		AttachmentURL:  m.AttachmentURL,
		AttachmentKind: string(m.AttachmentKind),
		Read:           m.Read,
		CreatedAt:      m.CreatedAt.Format(timeLayout),
	}
}

func contactToResponse(c *chat.Contact) ContactResponse {
	resp := ContactResponse{
		ID:          c.Profile.ID,
		Username:    c.Profile.Username,
		DisplayName: c.Profile.DisplayName,
		AvatarURL:   c.Profile.AvatarURL,
		Unread:      c.Unread,
	}
	if c.LastMessage != nil {
		last := messageToResponse(c.LastMessage)
		resp.LastMessage = &last
	}
	return resp
}

func messageToEvent(m *store.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:             m.ID,
		Sender:         m.SenderID,
		Recipient:      m.RecipientID,
		Text:           m.Text,
		AttachmentURL:  m.AttachmentURL,
		AttachmentKind: string(m.AttachmentKind),
		Read:           m.Read,
		TS:             m.CreatedAt.UnixMilli(),
	}
}

func threadToEvent(peer string, msgs []*store.Message) proto.EventThread {
	out := proto.EventThread{
		Peer:     peer,
		Messages: make([]proto.EventMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messageToEvent(m))
	}
	return out
}

func noticeToEvent(m *store.Message) proto.EventNotice {
	preview := m.Text
	if preview == "" && m.HasAttachment() {
		preview = "[" + string(m.AttachmentKind) + "]"
	}
	const maxPreview = 80
	if len(preview) > maxPreview {
		preview = preview[:maxPreview]
	}
	return proto.EventNotice{From: m.SenderID, Preview: preview}
}
