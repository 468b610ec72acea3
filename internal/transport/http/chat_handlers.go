package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pixelfold/pixchat-server/internal/chat"
)

// ChatHandlers provides HTTP handlers for messaging endpoints.
type ChatHandlers struct {
	svc      *chat.Service
	notifier *chat.Notifier
	log      *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *chat.Service, notifier *chat.Notifier, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		svc:      svc,
		notifier: notifier,
		log:      logger,
	}
}

// ContactsResponse wraps the contact list.
type ContactsResponse struct {
	Contacts []ContactResponse `json:"contacts"`
}

// ConversationResponse wraps an ordered message thread.
type ConversationResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// SendMessageRequest is the JSON body for a text-only send.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ListContacts returns all contacts with previews and unread counts.
// GET /api/contacts?query=
func (h *ChatHandlers) ListContacts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	contacts, err := h.svc.Contacts(c.Request.Context(), userID, c.Query("query"))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list contacts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := ContactsResponse{Contacts: make([]ContactResponse, 0, len(contacts))}
	for _, contact := range contacts {
		resp.Contacts = append(resp.Contacts, contactToResponse(contact))
	}
	c.JSON(http.StatusOK, resp)
}

// GetConversation returns the ordered thread with a peer. Loading triggers
// asynchronous read-marking of inbound unread messages.
// GET /api/conversations/:peer
func (h *ChatHandlers) GetConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	msgs, err := h.svc.Load(c.Request.Context(), userID, c.Param("peer"))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := ConversationResponse{Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageToResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

// SendMessage persists one outgoing message. Accepts either a JSON body with
// text, or a multipart form with a "text" field and one "attachment" file.
// POST /api/conversations/:peer/messages
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	peer := c.Param("peer")

	var text string
	var att *chat.Attachment

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text = c.PostForm("text")

		fileHeader, err := c.FormFile("attachment")
		if err == nil {
			if fileHeader.Size > chat.MaxAttachmentSize {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "attachment exceeds 10 MB limit"})
				return
			}
			file, err := fileHeader.Open()
			if err != nil {
				h.log.Error().Err(err).Msg("failed to open attachment upload")
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
			defer file.Close()

			data, err := io.ReadAll(io.LimitReader(file, chat.MaxAttachmentSize+1))
			if err != nil {
				h.log.Error().Err(err).Msg("failed to read attachment upload")
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
			att = &chat.Attachment{
				Name: fileHeader.Filename,
				MIME: fileHeader.Header.Get("Content-Type"),
				Data: data,
			}
		}
	} else {
		var req SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		text = req.Text
	}

	msg, err := h.svc.Send(c.Request.Context(), userID, peer, text, att)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotAuthenticated):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message needs text or an attachment"})
		case errors.Is(err, chat.ErrAttachmentTooLarge):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "attachment exceeds 10 MB limit"})
		case errors.Is(err, chat.ErrEmptyAttachment):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "attachment is empty"})
		case errors.Is(err, chat.ErrSelfMessage):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot message yourself"})
		default:
			// Upload and insert failures surface as a generic send failure;
			// the underlying detail is logged, not displayed verbatim.
			h.log.Error().Err(err).
				Str("user_id", userID).
				Str("peer_id", peer).
				Msg("failed to send message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to send message"})
		}
		return
	}

	c.JSON(http.StatusCreated, messageToResponse(msg))
}

// NotifyTyping publishes a debounced typing signal toward the peer.
// POST /api/conversations/:peer/typing
func (h *ChatHandlers) NotifyTyping(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	h.notifier.NotifyTyping(userID, c.Param("peer"))
	c.Status(http.StatusNoContent)
}
