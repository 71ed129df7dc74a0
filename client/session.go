package client

import (
	"context"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/taskdeck-io/taskdeck"
)

// Session tracks the caller's access token and resolved identity. It is not
// safe for concurrent use; callers drive it from a single goroutine.
//
// Any request the server refuses with 401 clears the session entirely, so a
// stale or revoked token can never linger behind an authenticated-looking
// state.
type Session struct {
	client *Client

	token    string
	refresh  string
	identity *taskdeck.User
}

func NewSession(c *Client) *Session {
	return &Session{client: c}
}

// Login exchanges credentials for tokens and immediately resolves the
// identity behind them. The identity is resolved exactly once here; role
// decisions made later read the stored copy.
func (s *Session) Login(ctx context.Context, email, password string) (taskdeck.User, error) {
	t, err := s.client.Auth.Login(ctx, email, password)
	if err != nil {
		return taskdeck.User{}, err
	}

	s.token = t.Access
	s.refresh = t.Refresh

	return s.ResolveIdentity(ctx)
}

// Restore adopts a previously issued access token, as when a token was
// persisted across program runs, and validates it by resolving the identity.
func (s *Session) Restore(ctx context.Context, token string) (taskdeck.User, error) {
	s.token = token
	s.refresh = ""

	return s.ResolveIdentity(ctx)
}

// ResolveIdentity asks the server who the current token belongs to and
// stores the answer. A 401 clears the session.
func (s *Session) ResolveIdentity(ctx context.Context) (taskdeck.User, error) {
	if s.token == "" {
		return taskdeck.User{}, taskdeck.ErrUnauthorized
	}

	u, err := s.client.Auth.Identity(s.bind(ctx), s.auth())
	if err != nil {
		return taskdeck.User{}, s.fail(err)
	}

	s.identity = &u
	return u, nil
}

// Refresh trades the refresh token for a new token pair. The identity is
// re-resolved under the new access token.
func (s *Session) Refresh(ctx context.Context) error {
	if s.refresh == "" {
		return taskdeck.ErrUnauthorized
	}

	t, err := s.client.Auth.Refresh(ctx, s.refresh)
	if err != nil {
		return s.fail(err)
	}

	s.token = t.Access
	s.refresh = t.Refresh

	_, err = s.ResolveIdentity(ctx)
	return err
}

// Logout revokes the server-side tokens on a best-effort basis and clears
// the local state unconditionally, so logout always succeeds from the
// caller's point of view.
func (s *Session) Logout(ctx context.Context) {
	if s.token != "" {
		s.client.Auth.Logout(s.bind(ctx), s.auth())
	}
	s.clear()
}

// IsAuthenticated reports whether the session holds a credential. The
// identity may still be unresolved, as after a Restore that failed on a
// transport error; role-gated calls check the identity separately.
func (s *Session) IsAuthenticated() bool {
	return s.token != ""
}

func (s *Session) Identity() (taskdeck.User, bool) {
	if s.identity == nil {
		return taskdeck.User{}, false
	}
	return *s.identity, true
}

func (s *Session) Token() string {
	return s.token
}

// bind attaches the access token to the outgoing request context, where the
// transport layer picks it up as a bearer header.
func (s *Session) bind(ctx context.Context) context.Context {
	return context.WithValue(ctx, kitjwt.JWTTokenContextKey, s.token)
}

func (s *Session) auth() taskdeck.Auth {
	if s.identity == nil {
		return taskdeck.Auth{}
	}
	return taskdeck.Auth{UserID: s.identity.ID, Role: s.identity.Role}
}

// fail inspects a transport error and forces a logout when the server no
// longer honors the session's token.
func (s *Session) fail(err error) error {
	if err == taskdeck.ErrUnauthorized {
		s.clear()
	}
	return err
}

func (s *Session) clear() {
	s.token = ""
	s.refresh = ""
	s.identity = nil
}
