package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pixelfold/pixchat-server/internal/auth"
	"github.com/pixelfold/pixchat-server/internal/blob"
	"github.com/pixelfold/pixchat-server/internal/chat"
	"github.com/pixelfold/pixchat-server/internal/realtime"
	"github.com/pixelfold/pixchat-server/internal/store"
	"github.com/pixelfold/pixchat-server/internal/store/sqlite"
)

type testEnv struct {
	router *gin.Engine
	store  store.Store
	auth   *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := blob.NewLocal(t.TempDir(), "http://localhost/media")
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	logger := zerolog.Nop()
	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "pixchat",
		Audience: "pixchat-clients",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtCfg)
	broker := realtime.NewBroker()
	svc := chat.NewService(st, blobs, broker, &logger)
	notifier := chat.NewNotifier(broker, chat.DefaultTypingDebounce)

	api := NewAPIHandlers(authService, &logger)
	chatHandlers := NewChatHandlers(svc, notifier, &logger)

	router := gin.New()
	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)
	authed := router.Group("/api", AuthMiddleware(authService, &logger))
	authed.GET("/contacts", chatHandlers.ListContacts)
	authed.GET("/conversations/:peer", chatHandlers.GetConversation)
	authed.POST("/conversations/:peer/messages", chatHandlers.SendMessage)
	authed.POST("/conversations/:peer/typing", chatHandlers.NotifyTyping)

	return &testEnv{router: router, store: st, auth: authService}
}

func (e *testEnv) register(t *testing.T, username string) (token, userID string) {
	t.Helper()
	token, err := e.auth.Register(context.Background(), username, "secret1", "")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	p, err := e.store.GetProfileByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("lookup %s: %v", username, err)
	}
	return token, p.ID
}

func (e *testEnv) do(t *testing.T, method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(RegisterRequest{Username: "alice", Password: "secret1"})
	w := env.do(t, http.MethodPost, "/api/register", "", body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if decode[AuthResponse](t, w).Token == "" {
		t.Fatal("expected a token in the response")
	}

	// Same username again conflicts.
	w = env.do(t, http.MethodPost, "/api/register", "", body, "application/json")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	body, _ := json.Marshal(LoginRequest{Username: "alice", Password: "secret1"})
	w := env.do(t, http.MethodPost, "/api/login", "", body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body, _ = json.Marshal(LoginRequest{Username: "alice", Password: "wrong"})
	w = env.do(t, http.MethodPost, "/api/login", "", body, "application/json")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/contacts", "", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/contacts", "not-a-jwt", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", w.Code)
	}

	token, _ := env.register(t, "alice")
	w = env.do(t, http.MethodGet, "/api/contacts", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSendAndLoadConversation(t *testing.T) {
	env := newTestEnv(t)

	aliceToken, aliceID := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	body, _ := json.Marshal(SendMessageRequest{Text: "hello bob"})
	w := env.do(t, http.MethodPost, "/api/conversations/"+bobID+"/messages", aliceToken, body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("send: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	sent := decode[MessageResponse](t, w)
	if sent.Text != "hello bob" || sent.Read {
		t.Fatalf("unexpected message %+v", sent)
	}

	w = env.do(t, http.MethodGet, "/api/conversations/"+aliceID, bobToken, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	conv := decode[ConversationResponse](t, w)
	if len(conv.Messages) != 1 || conv.Messages[0].ID != sent.ID {
		t.Fatalf("unexpected conversation %+v", conv)
	}
}

func TestSendValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	token, userID := env.register(t, "alice")
	_, bobID := env.register(t, "bob")

	// Nothing to send.
	body, _ := json.Marshal(SendMessageRequest{Text: "   "})
	w := env.do(t, http.MethodPost, "/api/conversations/"+bobID+"/messages", token, body, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty message: expected 400, got %d", w.Code)
	}

	// Self-addressed.
	body, _ = json.Marshal(SendMessageRequest{Text: "hi me"})
	w = env.do(t, http.MethodPost, "/api/conversations/"+userID+"/messages", token, body, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("self message: expected 400, got %d", w.Code)
	}
}

func TestSendMultipartAttachment(t *testing.T) {
	env := newTestEnv(t)

	token, _ := env.register(t, "alice")
	_, bobID := env.register(t, "bob")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("text", "see attached"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("attachment", "photo.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("jpeg bytes")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()

	w := env.do(t, http.MethodPost, "/api/conversations/"+bobID+"/messages", token, buf.Bytes(), mw.FormDataContentType())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	sent := decode[MessageResponse](t, w)
	if sent.AttachmentURL == "" {
		t.Fatal("expected an attachment URL")
	}
	// The form part carries no image content type, so the kind falls back to
	// the generic file bucket.
	if sent.AttachmentKind != string(store.AttachmentFile) {
		t.Fatalf("unexpected attachment kind %q", sent.AttachmentKind)
	}
}

func TestContactsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	aliceToken, aliceID := env.register(t, "alice")
	_, bobID := env.register(t, "bob")
	env.register(t, "carol")

	if err := env.store.InsertMessage(context.Background(), &store.Message{
		ID: "m1", SenderID: bobID, RecipientID: aliceID, Text: "yo",
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/contacts", aliceToken, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ContactsResponse](t, w)
	if len(resp.Contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(resp.Contacts))
	}
	if resp.Contacts[0].Username != "bob" || resp.Contacts[0].Unread != 1 {
		t.Fatalf("expected bob first with 1 unread, got %+v", resp.Contacts[0])
	}
	if resp.Contacts[0].LastMessage == nil || resp.Contacts[0].LastMessage.Text != "yo" {
		t.Fatal("expected a last-message preview for bob")
	}

	w = env.do(t, http.MethodGet, "/api/contacts?query=car", aliceToken, nil, "")
	resp = decode[ContactsResponse](t, w)
	if len(resp.Contacts) != 1 || resp.Contacts[0].Username != "carol" {
		t.Fatalf("expected filter to match only carol, got %+v", resp.Contacts)
	}
}

func TestTypingEndpoint(t *testing.T) {
	env := newTestEnv(t)

	token, _ := env.register(t, "alice")
	_, bobID := env.register(t, "bob")

	w := env.do(t, http.MethodPost, "/api/conversations/"+bobID+"/typing", token, nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}
