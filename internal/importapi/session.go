package importapi

import (
	"sync"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"golang.org/x/oauth2"
)

// Session carries the bearer token for the import service and tells its owner
// when the service rejects it. It is an oauth2.TokenSource so the client can
// authenticate through oauth2.Transport.
type Session struct {
	onExpired func()
	token     string
	mu        sync.Mutex
}

// NewSession creates a session. onExpired, if set, runs every time the
// service answers 401.
func NewSession(token string, onExpired func()) *Session {
	return &Session{token: token, onExpired: onExpired}
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return nil, common.ErrSessionExpired
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

// SetToken replaces the bearer token, e.g. after logging in again.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Active reports whether the session holds a token.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// expire drops the token and notifies the observer.
func (s *Session) expire() {
	s.mu.Lock()
	s.token = ""
	notify := s.onExpired
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}
