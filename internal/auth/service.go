package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pixelfold/pixchat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service provides authentication operations over the profile directory.
type Service struct {
	store     store.ProfileStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(profileStore store.ProfileStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     profileStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new profile with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, password, displayName string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	existing, err := s.store.GetProfileByUsername(ctx, username)
	if err == nil && existing != nil {
		return "", ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	profile, err := s.store.CreateProfile(ctx, username, hashedPassword, strings.TrimSpace(displayName))
	if err != nil {
		return "", fmt.Errorf("create profile: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, profile.ID, profile.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	profile, err := s.store.GetProfileByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(profile.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, profile.ID, profile.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
