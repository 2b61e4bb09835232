// Package session owns the persisted credentials of the signed-in user: the
// access token attached to every request and the user id derived from it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"github.com/plandesk/plandesk/internal/store"
	"github.com/rs/zerolog/log"
)

// Session reads and writes the authToken and userId store keys.
type Session struct {
	store store.Store
}

func New(s store.Store) *Session {
	return &Session{store: s}
}

// Token returns the current access token. Read failures are logged and
// reported as "no token" so that the request goes out unauthenticated.
func (s *Session) Token(ctx context.Context) (string, bool) {
	token, ok, err := s.readString(ctx, store.KeyAuthToken)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("session: reading token failed")
		return "", false
	}
	return token, ok && token != ""
}

// UserID returns the id of the signed-in user, if known.
func (s *Session) UserID(ctx context.Context) (string, bool, error) {
	return s.readString(ctx, store.KeyUserID)
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated(ctx context.Context) bool {
	_, ok := s.Token(ctx)
	return ok
}

// Establish persists a new token and user id. An empty user id leaves any
// previous value removed.
func (s *Session) Establish(ctx context.Context, token, userID string) error {
	if token == "" {
		return errors.New("session: empty token")
	}

	if err := s.writeString(ctx, store.KeyAuthToken, token); err != nil {
		return err
	}

	if userID == "" {
		return s.store.Delete(ctx, store.KeyUserID)
	}
	return s.writeString(ctx, store.KeyUserID, userID)
}

// ClearToken deletes the access token.
func (s *Session) ClearToken(ctx context.Context) error {
	if err := s.store.Delete(ctx, store.KeyAuthToken); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}

// ClearUserID deletes the cached user id.
func (s *Session) ClearUserID(ctx context.Context) error {
	if err := s.store.Delete(ctx, store.KeyUserID); err != nil {
		return fmt.Errorf("clearing user id: %w", err)
	}
	return nil
}

// SubjectFromToken returns the sub claim of an access token. The signature is
// not checked: the API verifies tokens, the client only reads them.
func SubjectFromToken(token string) (string, error) {
	claims := jwt.RegisteredClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil {
		return "", fmt.Errorf("parsing access token: %w", err)
	}

	if claims.Subject == "" {
		return "", errors.New("access token has no subject")
	}

	return claims.Subject, nil
}

func (s *Session) readString(ctx context.Context, key string) (string, bool, error) {
	data, found, err := s.store.Get(ctx, key)
	if err != nil || !found {
		return "", false, err
	}

	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return "", false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Session) writeString(ctx context.Context, key, value string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	if err := s.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
