package chat

import (
	"errors"
	"strings"

	"github.com/pixelfold/pixchat-server/internal/store"
)

// MaxAttachmentSize is the upper bound on a single attachment.
const MaxAttachmentSize = 10 << 20 // 10 MB

var (
	// ErrAttachmentTooLarge rejects attachments over MaxAttachmentSize.
	ErrAttachmentTooLarge = errors.New("attachment exceeds 10 MB limit")
	// ErrEmptyAttachment rejects attachments with no content.
	ErrEmptyAttachment = errors.New("attachment is empty")
)

// Attachment is a single staged media object to be sent with a message.
type Attachment struct {
	Name string
	MIME string
	Data []byte
}

// Kind classifies the attachment by its MIME prefix.
func (a *Attachment) Kind() store.AttachmentKind {
	return KindFromMIME(a.MIME)
}

// Validate checks size constraints before any network or storage call.
func (a *Attachment) Validate() error {
	if len(a.Data) == 0 {
		return ErrEmptyAttachment
	}
	if len(a.Data) > MaxAttachmentSize {
		return ErrAttachmentTooLarge
	}
	return nil
}

// KindFromMIME maps a MIME type onto the closed attachment kind set. Every
// call site that cares about attachment kind goes through here.
func KindFromMIME(mime string) store.AttachmentKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return store.AttachmentImage
	case strings.HasPrefix(mime, "video/"):
		return store.AttachmentVideo
	case strings.HasPrefix(mime, "audio/"):
		return store.AttachmentAudio
	default:
		return store.AttachmentFile
	}
}
