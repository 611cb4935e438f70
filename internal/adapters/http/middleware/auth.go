package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"drinkmailer/internal/domain/workflow"
)

// SessionTTL is the maximum age of a session.
const SessionTTL = 24 * time.Hour

// SessionIdleTTL drops sessions that have not been used for this long.
const SessionIdleTTL = 2 * time.Hour

// DefaultMaxSessions caps the store; the least recently used session is evicted beyond it.
const DefaultMaxSessions = 10000

const sessionCookieName = "drinkmailer_session"

// ErrNoSession is returned when a token does not refer to a live session.
var ErrNoSession = errors.New("session not found")

type contextKey string

const sessionContextKey contextKey = "session"

// Session is one browser's form state. ID is safe to log; the cookie token is not.
type Session struct {
	ID        string
	Workflow  *workflow.Workflow
	CreatedAt time.Time

	organizer atomic.Bool
	lastSeen  time.Time // guarded by SessionStore.mu
}

// IsOrganizer reports whether the session has passed the organizer gate.
func (s *Session) IsOrganizer() bool { return s.organizer.Load() }

// SessionStore is an in-memory session store keyed by cookie token.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	max      int
	now      func() time.Time
}

// NewSessionStore creates an empty store holding at most DefaultMaxSessions.
func NewSessionStore() *SessionStore {
	return NewBoundedSessionStore(DefaultMaxSessions)
}

// NewBoundedSessionStore creates an empty store holding at most max sessions.
// PRE: max > 0
func NewBoundedSessionStore(max int) *SessionStore {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		max:      max,
		now:      time.Now,
	}
}

// Create stores a new session with a fresh workflow and returns its token.
// POST: Len() <= max; a full store first drops expired sessions, then the least recently used one
func (ss *SessionStore) Create() (string, *Session, error) {
	token, err := generateToken()
	if err != nil {
		return "", nil, err
	}
	now := ss.now()
	s := &Session{
		ID:        uuid.NewString(),
		Workflow:  workflow.New(),
		CreatedAt: now,
		lastSeen:  now,
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if len(ss.sessions) >= ss.max {
		ss.sweepLocked(now)
	}
	for len(ss.sessions) >= ss.max {
		ss.evictLocked()
	}
	ss.sessions[token] = s
	return token, s, nil
}

func (ss *SessionStore) expired(s *Session, now time.Time) bool {
	return now.Sub(s.CreatedAt) > SessionTTL || now.Sub(s.lastSeen) > SessionIdleTTL
}

func (ss *SessionStore) sweepLocked(now time.Time) int {
	removed := 0
	for token, s := range ss.sessions {
		if ss.expired(s, now) {
			delete(ss.sessions, token)
			removed++
		}
	}
	return removed
}

func (ss *SessionStore) evictLocked() {
	var oldest string
	var oldestSeen time.Time
	for token, s := range ss.sessions {
		if oldest == "" || s.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = token, s.lastSeen
		}
	}
	if oldest == "" {
		return
	}
	slog.Warn("session_event", "event", "evicted", "session_id", ss.sessions[oldest].ID, "limit", ss.max)
	delete(ss.sessions, oldest)
}

// Get returns the live session for token and marks it used. Expired sessions are removed.
func (ss *SessionStore) Get(token string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.sessions[token]
	if !ok {
		return nil, false
	}
	now := ss.now()
	if ss.expired(s, now) {
		delete(ss.sessions, token)
		return nil, false
	}
	s.lastSeen = now
	return s, true
}

// Promote marks the session behind token as organizer and moves it to a new token.
// PRE: token refers to a live session
// POST: old token is invalid; returns the replacement
func (ss *SessionStore) Promote(token string) (string, error) {
	next, err := generateToken()
	if err != nil {
		return "", err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.sessions[token]
	if !ok {
		return "", ErrNoSession
	}
	s.organizer.Store(true)
	s.lastSeen = ss.now()
	delete(ss.sessions, token)
	ss.sessions[next] = s
	return next, nil
}

// Delete removes a session by token.
func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, token)
}

// Sweep drops expired and idle sessions and returns how many were removed.
func (ss *SessionStore) Sweep() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.sweepLocked(ss.now())
}

// Len returns the number of stored sessions.
func (ss *SessionStore) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

// Sessions returns middleware that attaches the caller's live session, if
// any, to the request context. It never creates one.
func Sessions(store *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				if s, ok := store.Get(cookie.Value); ok {
					r = r.WithContext(ContextWithSession(r.Context(), s))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EnsureSession returns middleware that creates a session (and sets the
// cookie) when Sessions attached none. Mount it behind RequireOrganizer so
// unauthenticated traffic never allocates state.
func EnsureSession(store *SessionStore, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetSessionFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			token, s, err := store.Create()
			if err != nil {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			SetSessionCookie(w, token, secure)
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), s)))
		})
	}
}

// RequireOrganizer blocks sessions that have not passed the organizer gate.
// When enabled is false every request passes. API callers get 401, pages
// are redirected to /login.
func RequireOrganizer(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := GetSessionFromContext(r.Context())
			if ok && s.IsOrganizer() {
				next.ServeHTTP(w, r)
				return
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		})
	}
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	return s, ok && s != nil
}

// ContextWithSession returns a context carrying sess.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// SessionToken returns the raw cookie token of the request, if any.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
