// ABOUTME: Credential store and login/logout orchestration for the chat core.
// ABOUTME: The local user id is read from the bearer token's subject claim.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ogleapp/chat/internal/chat"
	"github.com/ogleapp/chat/internal/wsconn"
)

// Session errors.
var (
	// ErrSessionActive rejects a Login while a session is already running.
	// Only one connect/disconnect transition may be in flight at a time.
	ErrSessionActive = errors.New("session already active")

	// ErrNoSubject means the credential carries no subject claim to
	// derive the local user id from.
	ErrNoSubject = errors.New("token has no subject claim")
)

// Store holds the active credential. It satisfies the REST client's
// TokenSource.
type Store struct {
	mu     sync.RWMutex
	token  string
	userID string
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{}
}

// Set records the credential and the user id derived from it.
func (s *Store) Set(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.userID = userID
}

// Token returns the current bearer credential, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the local user id, or "" when logged out.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Clear wipes the credential.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.userID = ""
}

// Session drives the chat core through login and logout. Exactly one
// Session exists per process; it is passed to whoever needs it.
type Session struct {
	store  *Store
	conn   *wsconn.Manager
	sync   *chat.Synchronizer
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc

	onAuthRequired func()
}

// New creates a session over the connection and synchronizer. Pass nil
// logger for default.
func New(store *Store, conn *wsconn.Manager, sync *chat.Synchronizer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:  store,
		conn:   conn,
		sync:   sync,
		logger: logger.With("component", "session"),
	}
}

// SetAuthRequiredHandler registers the external auth-required signal,
// invoked after an invalidated session has been torn down.
func (s *Session) SetAuthRequiredHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAuthRequired = fn
}

// Login stores the credential, starts the frame consumer and connects.
// Returns ErrSessionActive if a session is already running.
func (s *Session) Login(ctx context.Context, token string) error {
	userID, err := UserIDFromToken(token)
	if err != nil {
		return fmt.Errorf("reading credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSessionActive
	}

	s.store.Set(token, userID)
	s.sync.SetUser(userID)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.sync.Run(runCtx, s.conn.Frames())
	s.conn.Connect(runCtx, token)

	s.logger.Info("logged in", "user_id", userID)
	return nil
}

// Logout disconnects and clears all in-memory conversation state. Calling
// it without an active session is a no-op.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutLocked()
}

// Invalidate tears the session down after a credential rejection and fires
// the auth-required signal.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.logger.Warn("session invalidated, credential rejected")
	s.logoutLocked()
	fn := s.onAuthRequired
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Active reports whether a session is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// logoutLocked performs teardown. Must be called with mu held.
func (s *Session) logoutLocked() {
	if s.cancel == nil {
		return
	}
	s.conn.Disconnect()
	s.cancel()
	s.cancel = nil
	s.sync.Reset()
	s.store.Clear()
	s.logger.Info("logged out")
}

// UserIDFromToken extracts the subject claim from a JWT credential. The
// signature is not verified: the client never holds the signing secret and
// the server validates the token on every use; the claim is only needed to
// tag own messages locally.
func UserIDFromToken(token string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}
