package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/pixelfold/pixchat-server/internal/store"
)

var (
	// ErrSubmitInFlight rejects a submit while a prior one is unresolved.
	ErrSubmitInFlight = errors.New("submission already in flight")
	// ErrRecordingInProgress rejects actions that conflict with an active
	// voice recording.
	ErrRecordingInProgress = errors.New("recording in progress")
	// ErrNotRecording is returned when stopping without an active recording.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrNothingStaged rejects a submit with no text and no attachment.
	ErrNothingStaged = errors.New("nothing staged to send")
)

// voiceMIME is the MIME type stamped on recorded voice attachments.
const voiceMIME = "audio/webm"

// Composer validates and submits one outgoing message unit: text and/or a
// single attachment, including ad hoc voice recordings. Staged input
// survives a failed submit so the user can retry.
type Composer struct {
	svc       *Service
	notifier  *Notifier
	currentID string
	peerID    string

	mu         sync.Mutex
	text       string
	attachment *Attachment
	recording  bool
	recBuf     []byte
	inFlight   bool
}

// NewComposer creates a composer bound to one conversation.
func NewComposer(svc *Service, notifier *Notifier, currentID, peerID string) *Composer {
	return &Composer{
		svc:       svc,
		notifier:  notifier,
		currentID: currentID,
		peerID:    peerID,
	}
}

// SetText updates the staged text and emits a debounced typing signal on
// non-empty input.
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()

	if text != "" && c.notifier != nil {
		c.notifier.NotifyTyping(c.currentID, c.peerID)
	}
}

// Text returns the currently staged text.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// AttachFile stages a single file attachment. Rejected files never reach the
// network and leave previously staged input untouched, so the user can still
// submit what was already selected. Staging a file discards any active or
// staged recording.
func (c *Composer) AttachFile(name, mime string, data []byte) error {
	att := &Attachment{Name: name, MIME: mime, Data: data}
	if err := att.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = false
	c.recBuf = nil
	c.attachment = att
	return nil
}

// Attachment returns the staged attachment, or nil.
func (c *Composer) Attachment() *Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

// ClearAttachment removes the staged attachment.
func (c *Composer) ClearAttachment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachment = nil
}

// StartRecording begins capturing a voice attachment. Any staged file
// attachment is replaced by the recording.
func (c *Composer) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return ErrRecordingInProgress
	}
	c.attachment = nil
	c.recBuf = c.recBuf[:0]
	c.recording = true
	return nil
}

// AppendAudio adds captured audio bytes to the active recording.
func (c *Composer) AppendAudio(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return ErrNotRecording
	}
	c.recBuf = append(c.recBuf, chunk...)
	return nil
}

// StopRecording finishes the capture and stages it as a single audio
// attachment.
func (c *Composer) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return ErrNotRecording
	}
	c.recording = false

	att := &Attachment{Name: "voice-message.webm", MIME: voiceMIME, Data: c.recBuf}
	c.recBuf = nil
	if err := att.Validate(); err != nil {
		return err
	}
	c.attachment = att
	return nil
}

// Recording reports whether a voice capture is active.
func (c *Composer) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// CanSubmit reports whether a submit would currently be accepted.
func (c *Composer) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight || c.recording {
		return false
	}
	return c.text != "" || c.attachment != nil
}

// Submit sends the staged message through the conversation service. On
// success all staged input is cleared; on failure it is left intact and the
// error surfaced.
func (c *Composer) Submit(ctx context.Context) (*store.Message, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if c.recording {
		c.mu.Unlock()
		return nil, ErrRecordingInProgress
	}
	if c.text == "" && c.attachment == nil {
		c.mu.Unlock()
		return nil, ErrNothingStaged
	}
	text, att := c.text, c.attachment
	c.inFlight = true
	c.mu.Unlock()

	msg, err := c.svc.Send(ctx, c.currentID, c.peerID, text, att)

	c.mu.Lock()
	c.inFlight = false
	if err == nil {
		c.text = ""
		c.attachment = nil
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return msg, nil
}
