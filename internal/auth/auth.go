// Package auth verifies the bearer tokens that callers present before a
// search runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

// ErrUnauthenticated is returned for missing, malformed or rejected tokens.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Verifier resolves a token to the ID of the user it was issued to.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// Static accepts a single configured token, or any non-empty token when
// Token is empty. It is meant for local, single-user runs.
type Static struct {
	Token  string
	UserID string
}

func (s Static) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	if s.Token != "" && token != s.Token {
		return "", ErrUnauthenticated
	}
	if s.UserID == "" {
		return "local", nil
	}
	return s.UserID, nil
}

// Supabase verifies tokens against a Supabase project's auth service.
type Supabase struct {
	client *supabase.Client
}

// NewSupabase creates a Verifier for the project at url.
func NewSupabase(url, key string) (*Supabase, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Supabase{client: client}, nil
}

// Verify asks the auth service for the token's user. The auth client takes
// no context, so ctx is only checked before the call.
func (s *Supabase) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")
	if token == "" {
		return "", ErrUnauthenticated
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	user, err := s.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return user.ID.String(), nil
}
