package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/securecookie"

	"github.com/zhouzirui/news-agent/backend/internal/config"
	"github.com/zhouzirui/news-agent/backend/internal/logger"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
)

type contextKey struct{}

// Store is the subset of the chat service the cookie layer needs.
type Store interface {
	CreateSession(ctx context.Context) (chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
}

// Manager binds browser cookies to server-side sessions.
type Manager struct {
	name   string
	secure bool
	codec  *securecookie.SecureCookie
	store  Store
}

// NewManager creates a cookie manager. Without a configured hash key a random
// one is generated, so cookies do not survive a restart.
func NewManager(cfg config.SessionConfig, store Store) *Manager {
	hashKey := cfg.HashKey
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
		logger.Warn("SESSION_HASH_KEY not set, using an ephemeral key")
	}

	codec := securecookie.New(hashKey, nil)
	// Session cookies; lifetime is bounded by the server-side idle TTL.
	codec.MaxAge(0)

	return &Manager{
		name:   cfg.CookieName,
		secure: cfg.Secure,
		codec:  codec,
		store:  store,
	}
}

// Lookup returns the session bound to the request cookie without creating one.
func (m *Manager) Lookup(r *http.Request) (chat.Session, error) {
	cookie, err := r.Cookie(m.name)
	if err != nil {
		return chat.Session{}, chat.ErrSessionNotFound
	}

	var sessionID string
	if err := m.codec.Decode(m.name, cookie.Value, &sessionID); err != nil {
		return chat.Session{}, chat.ErrSessionNotFound
	}

	return m.store.GetSession(r.Context(), sessionID)
}

// Resolve returns the request's session, creating one and setting the cookie
// when the request has none or refers to a session that no longer exists.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) (chat.Session, error) {
	session, err := m.Lookup(r)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, chat.ErrSessionNotFound) {
		return chat.Session{}, err
	}

	session, err = m.store.CreateSession(r.Context())
	if err != nil {
		return chat.Session{}, err
	}

	encoded, err := m.codec.Encode(m.name, session.ID)
	if err != nil {
		return chat.Session{}, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return session, nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware resolves the session for every request and stores its ID in the
// request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := m.Resolve(w, r)
		if err != nil {
			logger.Error("resolve session failed", "err", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), session.ID)))
	})
}

// WithID returns a context carrying sessionID.
func WithID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKey{}, sessionID)
}

// IDFromContext returns the session ID placed by Middleware.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
