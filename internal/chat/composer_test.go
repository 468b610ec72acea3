package chat

import (
	"context"
	"testing"

	"github.com/pixelfold/pixchat-server/internal/store"
)

func TestComposerRejectsOversizedFileWithoutNetwork(t *testing.T) {
	st := newTestStore(t)
	svc, blobs, _ := newTestService(t, st)

	alice := createProfile(t, st, "alice")
	bob := createProfile(t, st, "bob")

	c := NewComposer(svc, nil, alice.ID, bob.ID)

	err := c.AttachFile("huge.jpg", "image/jpeg", make([]byte, MaxAttachmentSize+1))
	if err != ErrAttachmentTooLarge {
		t.Fatalf("expected ErrAttachmentTooLarge, got %v", err)
	}
	if blobs.putCount() != 0 {
		t.Fatalf("expected no network activity, got %d uploads", blobs.putCount())
	}
	if c.Attachment() != nil {
		t.Fatal("rejected file must not be staged")
	}
}

func TestComposerRejectedAttachKeepsPriorStaging(t *testing.T) {
	st := newTestStore(t)
	svc, blobs, _ := newTestService(t, st)

	alice := createProfile(t, st, "alice")
	bob := createProfile(t, st, "bob")

	c := NewComposer(svc, nil, alice.ID, bob.ID)
	c.SetText("caption")
	if err := c.AttachFile("photo.jpg", "image/jpeg", []byte("jpeg")); err != nil {
		t.Fatalf("attach: %v", err)
	}

	err := c.AttachFile("huge.mp4", "video/mp4", make([]byte, MaxAttachmentSize+1))
	if err != ErrAttachmentTooLarge {
		t.Fatalf("expected ErrAttachmentTooLarge, got %v", err)
	}
	if blobs.putCount() != 0 {
		t.Fatalf("expected no network activity, got %d uploads", blobs.putCount())
	}

	// The earlier selection stays staged and submittable.
	att := c.Attachment()
	if att == nil || att.Name != "photo.jpg" {
		t.Fatal("prior staged attachment must survive the rejection")
	}
	if c.Text() != "caption" {
		t.Fatalf("staged text must survive the rejection, got %q", c.Text())
	}
	if !c.CanSubmit() {
		t.Fatal("composer must remain submittable after a rejected attach")
	}
}

func TestComposerSubmitGating(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t, st)

	alice := createProfile(t, st, "alice")
	bob := createProfile(t, st, "bob")

	c := NewComposer(svc, nil, alice.ID, bob.ID)

	if c.CanSubmit() {
		t.Fatal("empty composer must not be submittable")
	}
	if _, err := c.Submit(context.Background()); err != ErrNothingStaged {
		t.Fatalf("expected ErrNothingStaged, got %v", err)
	}

	c.SetText("hello")
	if !c.CanSubmit() {
		t.Fatal("composer with text must be submittable")
	}

	if err := c.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if c.CanSubmit() {
		t.Fatal("composer must not submit while recording")
	}
	if _, err := c.Submit(context.Background()); err != ErrRecordingInProgress {
		t.Fatalf("expected ErrRecordingInProgress, got %v", err)
	}
}

func TestComposerVoiceRecordingFlow(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t, st)
	ctx := context.Background()

	alice := createProfile(t, st, "alice")
	bob := createProfile(t, st, "bob")

	c := NewComposer(svc, nil, alice.ID, bob.ID)

	if err := c.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if err := c.AppendAudio([]byte("audio chunk one ")); err != nil {
		t.Fatalf("append audio: %v", err)
	}
	if err := c.AppendAudio([]byte("audio chunk two")); err != nil {
		t.Fatalf("append audio: %v", err)
	}
	if err := c.StopRecording(); err != nil {
		t.Fatalf("stop recording: %v", err)
	}

	msg, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if msg.AttachmentKind != store.AttachmentAudio {
		t.Fatalf("expected audio attachment, got %s", msg.AttachmentKind)
	}
	if msg.Text != "" {
		t.Fatalf("expected empty text, got %q", msg.Text)
	}

	msgs, err := st.ListConversation(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(msgs))
	}
}

func TestComposerRecordingReplacesStagedFile(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t, st)

	alice := createProfile(t, st, "alice")
	bob := createProfile(t, st, "bob")

	c := NewComposer(svc, nil, alice.ID, bob.ID)

	if err := c.AttachFile("photo.jpg", "image/jpeg", []byte("jpeg")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := c.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if c.Attachment() != nil {
		t.Fatal("starting a recording must discard the staged file")
	}

	// And the other direction: attaching a file cancels the recording.
	if err := c.AttachFile("photo.jpg", "image/jpeg", []byte("jpeg")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if c.Recording() {
		t.Fatal("attaching a file must cancel the active recording")
	}
	if c.Attachment() == nil {
		t.Fatal("file must be staged")
	}
}

func TestComposerFailurePreservesStagedInput(t *testing.T) {
	st := &failingStore{Store: newTestStore(t), failInsert: true}
	svc, _, _ := newTestService(t, st)
	ctx := context.Background()

	alice := createProfile(t, st, "alice")
	bob := createProfile(t, st, "bob")

	c := NewComposer(svc, nil, alice.ID, bob.ID)
	c.SetText("keep me")
	if err := c.AttachFile("photo.jpg", "image/jpeg", []byte("jpeg")); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if _, err := c.Submit(ctx); err == nil {
		t.Fatal("expected submit to fail")
	}
	if c.Text() != "keep me" {
		t.Fatalf("text must survive a failed submit, got %q", c.Text())
	}
	if c.Attachment() == nil {
		t.Fatal("attachment must survive a failed submit")
	}

	// Retry after the backend recovers.
	st.failInsert = false
	msg, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if msg.Text != "keep me" {
		t.Fatalf("unexpected message text %q", msg.Text)
	}
	if c.Text() != "" || c.Attachment() != nil {
		t.Fatal("successful submit must clear staged input")
	}
}
