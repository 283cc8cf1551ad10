// Package session holds the signed-in state of one browser. Nothing else in
// the frontend keeps credentials; components receive a Context and react to
// authorization failures by calling Invalidate.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"questionforum/pkg/models"
)

var ErrNoCredential = errors.New("session: no stored credential")

// Context is the capability set handed to the components that need to know
// who is looking.
type Context interface {
	IsAuthenticated() bool
	CurrentUser() (models.User, bool)
	Invalidate()
}

// TokenChecker validates a stored bearer credential and returns its user.
type TokenChecker interface {
	CheckToken(ctx context.Context, token string) (models.User, error)
}

type Session struct {
	log *zap.Logger

	mu           sync.RWMutex
	token        string
	user         *models.User
	invalidated  bool
	onInvalidate []func()
}

// New wraps a stored credential. The session is not authenticated until Init
// (or Authenticate) succeeds.
func New(token string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{token: token, log: log}
}

// Init validates the stored credential. A rejected credential tears the
// session down; other failures leave it unauthenticated but intact.
func (s *Session) Init(ctx context.Context, checker TokenChecker) error {
	token := s.Token()
	if token == "" {
		return ErrNoCredential
	}
	user, err := checker.CheckToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			s.log.Info("stored credential rejected")
			s.Invalidate()
		}
		return err
	}
	s.Authenticate(token, user)
	return nil
}

// Authenticate records a credential the API just issued, e.g. after login.
func (s *Session) Authenticate(token string, user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = &user
	s.invalidated = false
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.invalidated && s.token != "" && s.user != nil
}

func (s *Session) CurrentUser() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.invalidated || s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Invalidated reports whether the session was torn down.
func (s *Session) Invalidated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invalidated
}

// OnInvalidate registers a teardown hook. Hooks run once, outside the lock.
func (s *Session) OnInvalidate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInvalidate = append(s.onInvalidate, fn)
}

// Invalidate clears the credential and runs the teardown hooks. Repeated
// calls are no-ops.
func (s *Session) Invalidate() {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	s.token = ""
	s.user = nil
	hooks := s.onInvalidate
	s.onInvalidate = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Anonymous is the Context of a visitor who never signed in.
type Anonymous struct{}

func (Anonymous) IsAuthenticated() bool            { return false }
func (Anonymous) CurrentUser() (models.User, bool) { return models.User{}, false }
func (Anonymous) Invalidate()                      {}
