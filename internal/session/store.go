package session

import (
	"context"
	"sync"
	"time"

	"github.com/medicore/hms-access/internal/audit"
	"github.com/medicore/hms-access/internal/authclient"
	"github.com/medicore/hms-access/pkg/logger"
	"github.com/medicore/hms-access/pkg/types"
)

// Overrides is the slice of the override controller the session store
// needs: logout must terminate any active override synchronously, so an
// override can never outlive its session.
type Overrides interface {
	Deactivate(ctx context.Context) error
}

// Events receives session teardown notifications. Implemented by the
// access event bus so UI consumers see the session end without polling.
type Events interface {
	SessionEnded(userID string)
}

// Store owns the single source of truth for "who is logged in and how".
// It is single-writer (the interactive user) with concurrent readers.
type Store struct {
	auth      authclient.Backend
	durable   TokenStore
	ephemeral TokenStore
	overrides Overrides
	emitter   audit.Emitter
	events    Events
	logger    *logger.Logger

	mu      sync.RWMutex
	session *types.Session
	tokens  TokenStore // store selected by the remember flag at login
}

// NewStore creates a session store. The override controller is attached
// afterwards via SetOverrides because the two are wired in both
// directions at startup.
func NewStore(auth authclient.Backend, durable, ephemeral TokenStore, emitter audit.Emitter, events Events, log *logger.Logger) *Store {
	return &Store{
		auth:      auth,
		durable:   durable,
		ephemeral: ephemeral,
		emitter:   emitter,
		events:    events,
		logger:    log,
	}
}

// SetOverrides attaches the override controller used during logout.
func (s *Store) SetOverrides(o Overrides) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = o
}

// Login authenticates against the backend and establishes the session.
// The remember flag selects durable token storage; otherwise the token
// lives only as long as the process.
func (s *Store) Login(ctx context.Context, creds types.Credentials, remember bool) (*types.Session, error) {
	result, err := s.auth.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	tokens := s.ephemeral
	if remember {
		tokens = s.durable
	}
	return s.establish(result, tokens, false)
}

// LoginAsDemo creates a sandboxed demo session for the given role. Demo
// sessions are never remembered and gain elevated rights only through
// the same override controller path as real sessions.
func (s *Store) LoginAsDemo(ctx context.Context, role types.Role) (*types.Session, error) {
	if _, err := types.ParseRole(string(role)); err != nil {
		return nil, err
	}

	result, err := s.auth.LoginDemo(ctx, role)
	if err != nil {
		return nil, err
	}
	return s.establish(result, s.ephemeral, true)
}

func (s *Store) establish(result *authclient.LoginResult, tokens TokenStore, demo bool) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &types.Session{
		User:     result.User,
		Token:    result.Token,
		Demo:     demo,
		IssuedAt: time.Now(),
	}

	// Only one persistence target may hold the token at a time.
	_ = s.durable.Clear()
	_ = s.ephemeral.Clear()
	if err := tokens.Save(result.Token); err != nil {
		s.logger.WithError(err).Warn("Failed to persist session token")
	}

	s.session = session
	s.tokens = tokens

	s.logger.WithUserID(session.User.ID).WithFields(map[string]interface{}{
		"role": session.User.Role,
		"demo": demo,
	}).Info("Session established")

	snapshot := *session
	return &snapshot, nil
}

// Logout tears the session down. The override controller is terminated
// first and synchronously: no timer may survive into a later session of
// a different user. Backend logout is best effort — a transport failure
// must not leave the local session standing.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	tokens := s.tokens
	overrides := s.overrides
	s.session = nil
	s.tokens = nil
	s.mu.Unlock()

	if overrides != nil {
		if err := overrides.Deactivate(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to terminate override during logout")
		}
	}

	if tokens != nil {
		_ = tokens.Clear()
	}

	if session == nil {
		return nil
	}

	if err := s.auth.Logout(ctx, session.Token); err != nil {
		s.logger.WithError(err).Warn("Backend logout failed; local session cleared anyway")
	}

	s.announceEnd(ctx, session, "logout")
	s.logger.WithUserID(session.User.ID).Info("Session ended")
	return nil
}

// ForceLogout tears the session down without contacting the backend.
// Used when the backend has already rejected the token as expired.
func (s *Store) ForceLogout(ctx context.Context) {
	s.mu.Lock()
	session := s.session
	tokens := s.tokens
	overrides := s.overrides
	s.session = nil
	s.tokens = nil
	s.mu.Unlock()

	if overrides != nil {
		_ = overrides.Deactivate(ctx)
	}
	if tokens != nil {
		_ = tokens.Clear()
	}
	if session != nil {
		s.announceEnd(ctx, session, "session_expired")
		s.logger.Security("forced_logout", session.User.ID, map[string]interface{}{
			"reason": "session expired",
		})
	}
}

// announceEnd records the session teardown on the audit trail and the
// event bus. Both sinks are best effort; teardown itself already
// happened.
func (s *Store) announceEnd(ctx context.Context, session *types.Session, reason string) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, audit.Entry{
			Action:     audit.ActionSessionEnded,
			EntityType: "session",
			EntityID:   session.User.ID,
			Actor:      session.User.ID,
			Details: map[string]interface{}{
				"reason": reason,
				"demo":   session.Demo,
			},
		})
	}
	if s.events != nil {
		s.events.SessionEnded(session.User.ID)
	}
}

// Refresh re-validates the session's token against the backend and
// updates the cached identity. A token the backend rejects forces a
// local logout so the session cannot outlive the backend's decision;
// transient network failures leave the session standing.
func (s *Store) Refresh(ctx context.Context) (*types.User, error) {
	s.mu.RLock()
	if s.session == nil {
		s.mu.RUnlock()
		return nil, types.NewAuthenticationError(types.ErrCodeNotAuthenticated, "no authenticated session")
	}
	token := s.session.Token
	s.mu.RUnlock()

	user, err := s.auth.Me(ctx, token)
	if err != nil {
		if types.IsType(err, types.ErrorTypeSessionExpired) ||
			types.IsType(err, types.ErrorTypeAuthentication) {
			s.ForceLogout(ctx)
		}
		return nil, err
	}

	s.mu.Lock()
	if s.session != nil && s.session.Token == token {
		s.session.User = *user
	}
	s.mu.Unlock()
	return user, nil
}

// Restore re-establishes a remembered session from the durable token
// store at startup. Override state is never restored: restart is
// fail-closed. An expired or rejected token clears the stored copy.
func (s *Store) Restore(ctx context.Context) (*types.Session, error) {
	token, ok := s.durable.Load()
	if !ok {
		return nil, nil
	}

	if tokenExpired(token, time.Now()) {
		_ = s.durable.Clear()
		return nil, types.NewSessionExpiredError("persisted session token expired")
	}

	user, err := s.auth.Me(ctx, token)
	if err != nil {
		if types.IsType(err, types.ErrorTypeSessionExpired) ||
			types.IsType(err, types.ErrorTypeAuthentication) {
			_ = s.durable.Clear()
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &types.Session{
		User:     *user,
		Token:    token,
		IssuedAt: time.Now(),
	}
	s.tokens = s.durable

	s.logger.WithUserID(user.ID).Info("Session restored from persisted token")
	snapshot := *s.session
	return &snapshot, nil
}

// CurrentUser returns the authenticated identity, if any. Pure read.
func (s *Store) CurrentUser() (*types.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, false
	}
	user := s.session.User
	return &user, true
}

// CurrentRole returns the session's role, if authenticated.
func (s *Store) CurrentRole() (types.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return "", false
	}
	return s.session.User.Role, true
}

// Current returns a snapshot of the whole session, if any.
func (s *Store) Current() (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, false
	}
	snapshot := *s.session
	return &snapshot, true
}
