package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixelfold/pixchat-server/internal/store/sqlite"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "pixchat",
		Audience: "pixchat-clients",
		TTL:      time.Hour,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, testJWTConfig())
}

func TestRegisterAndValidate(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Register(context.Background(), "alice", "secret1", "Alice A")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Username != "alice" || claims.UserID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "secret1", ""); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("short username: expected ErrInvalidUsername, got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "short", ""); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("short password: expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "secret1", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "secret2", ""); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "secret1", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	token, err := svc.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.ValidateToken(token); err != nil {
		t.Fatalf("validate login token: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateRejectsForgedToken(t *testing.T) {
	svc := newTestService(t)

	otherCfg := testJWTConfig()
	otherCfg.Secret = []byte("other-secret")
	forged, err := GenerateToken(otherCfg, "user-1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ValidateToken(forged); err == nil {
		t.Fatal("expected validation to reject a token signed with another secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TTL = -time.Minute
	expired, err := GenerateToken(cfg, "user-1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(testJWTConfig(), expired); err == nil {
		t.Fatal("expected validation to reject an expired token")
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Issuer = "someone-else"
	token, err := GenerateToken(cfg, "user-1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(testJWTConfig(), token); err == nil {
		t.Fatal("expected validation to reject a token from another issuer")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "secret1" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := ComparePassword(hash, "secret1"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch for wrong password")
	}
}
