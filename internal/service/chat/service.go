package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/news-agent/backend/internal/logger"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
	"github.com/zhouzirui/news-agent/backend/internal/service/auth"
)

// SignupNotice is shown after a successful signup; the account still needs
// email confirmation before it can log in.
const SignupNotice = "Signup successful! Please check your email for verification."

// Authenticator is the identity provider as seen by the conversation flow.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Grant, error)
	SignUp(ctx context.Context, email, password string) (*chat.User, error)
}

// Agent answers one chat turn. The webhook client is the production implementation.
type Agent interface {
	Send(ctx context.Context, sessionID, userMessage, authToken string) (string, error)
}

type entry struct {
	// mu is held for the whole of one operation so turns of a session never overlap.
	mu       sync.Mutex
	state    chat.Session
	lastSeen time.Time
}

// Service owns per-browser session state and runs the login, signup, chat and
// logout operations against it.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	auth  Authenticator
	agent Agent
	now   func() time.Time
}

// NewService bootstraps the in-memory session store.
func NewService(authenticator Authenticator, agent Agent) *Service {
	return &Service{
		sessions: make(map[string]*entry),
		auth:     authenticator,
		agent:    agent,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions an anonymous session with a fresh identifier.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	now := s.now()
	session := chat.NewSession(uuid.NewString(), now)

	s.mu.Lock()
	s.sessions[session.ID] = &entry{state: session, lastSeen: now}
	s.mu.Unlock()

	logger.Debug("session created", "session_id", session.ID)
	return session.Clone(), nil
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.acquire(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	defer e.mu.Unlock()
	e.lastSeen = s.now()
	return e.state.Clone(), nil
}

// EndSession discards the session. A later request gets a new session and ID.
func (s *Service) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return chat.ErrSessionNotFound
	}

	e.mu.Lock()
	e.state = chat.Reduce(e.state, chat.LoggedOut{})
	e.mu.Unlock()

	logger.Debug("session ended", "session_id", sessionID)
	return nil
}

// Login signs the user in and marks the session authenticated. On failure the
// session is left as it was.
func (s *Service) Login(ctx context.Context, sessionID, email, password string) (chat.Session, error) {
	e, err := s.acquire(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	defer e.mu.Unlock()
	e.lastSeen = s.now()

	grant, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		logger.Warn("login failed", "session_id", sessionID, "err", err)
		return e.state.Clone(), err
	}

	e.state = chat.Reduce(e.state, chat.LoginSucceeded{User: grant.User, Token: grant.AccessToken})
	logger.Info("user logged in", "session_id", sessionID, "user_id", grant.User.ID)
	return e.state.Clone(), nil
}

// Signup registers a new account. It never signs the user in; the provider
// normally requires email confirmation first.
func (s *Service) Signup(ctx context.Context, email, password string) error {
	user, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		logger.Warn("signup failed", "err", err)
		return err
	}

	logger.Info("user signed up", "user_id", user.ID)
	return nil
}

// SendMessage runs one chat turn. The user's message is appended before the
// webhook call; the assistant reply is appended only if the call succeeds. On
// failure the returned session still carries the user's message.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string) (chat.Session, error) {
	e, err := s.acquire(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	defer e.mu.Unlock()
	e.lastSeen = s.now()

	if !e.state.Authenticated {
		return e.state.Clone(), chat.ErrNotAuthenticated
	}
	if strings.TrimSpace(text) == "" {
		return e.state.Clone(), chat.ErrEmptyMessage
	}

	e.state = chat.Reduce(e.state, chat.UserSubmitted{Content: text, At: s.now()})

	reply, err := s.agent.Send(ctx, e.state.ID, text, e.state.AuthToken)
	if err != nil {
		logger.Error("webhook call failed", "session_id", sessionID, "err", err)
		return e.state.Clone(), err
	}

	// An empty output produces no assistant turn.
	if reply != "" {
		e.state = chat.Reduce(e.state, chat.AssistantReplied{Content: reply, At: s.now()})
	}

	return e.state.Clone(), nil
}

// PruneIdle drops sessions untouched for longer than ttl and reports how many
// were removed.
func (s *Service) PruneIdle(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			// A turn is in flight.
			continue
		}
		idle := e.lastSeen.Before(cutoff)
		e.mu.Unlock()

		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor prunes idle sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PruneIdle(ttl); n > 0 {
				logger.Info("pruned idle sessions", "count", n)
			}
		}
	}
}

// Len reports how many sessions are live.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// acquire returns the session's entry locked. The entry is re-checked against
// the store once locked, since EndSession or PruneIdle may drop it meanwhile.
func (s *Service) acquire(sessionID string) (*entry, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	s.mu.RLock()
	current := s.sessions[sessionID]
	s.mu.RUnlock()
	if current != e {
		e.mu.Unlock()
		return nil, chat.ErrSessionNotFound
	}
	return e, nil
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	if sessionID == "" {
		return nil, chat.ErrSessionNotFound
	}

	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, chat.ErrSessionNotFound
	}
	return e, nil
}
