// Package session implements the Admin Session component (spec §4.5):
// opaque-token lifecycle for the single admin identity, grounded on the
// teacher's SessionService (create/validate/delete), de-multi-tenanted.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/repository"
)

const sessionDuration = 7 * 24 * time.Hour

// Service manages admin sessions.
type Service struct {
	sessions *repository.SessionRepository
}

func New(sessions *repository.SessionRepository) *Service {
	return &Service{sessions: sessions}
}

// Create generates a fresh cryptographically random, URL-safe token and
// persists a session expiring 7 days from now.
func (s *Service) Create(ctx context.Context) (*models.AdminSession, error) {
	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("session: generate token: %w", err)
	}

	now := models.Now()
	sess := &models.AdminSession{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: models.NewSQLiteTime(now.Time.Add(sessionDuration)),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate returns the session for token if it exists and has not
// expired. Primary-key lookup, so constant-time comparison is not
// required here (unlike password verification, which stays out of core
// scope per spec §1 but is implemented with bcrypt in internal/handlers).
func (s *Service) Validate(ctx context.Context, token string) (*models.AdminSession, error) {
	if token == "" {
		return nil, nil
	}
	return s.sessions.Validate(ctx, token, models.Now())
}

// Revoke deletes the session if present. Idempotent.
func (s *Service) Revoke(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

func randomToken() (string, error) {
	buf := make([]byte, 32) // 256 bits
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
