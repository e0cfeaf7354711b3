package chat

import "time"

// Session captures the per-browser conversation state.
//
// ID is generated once and sent with every webhook call so the workflow engine
// can correlate turns of the same conversation.
type Session struct {
	ID            string    `json:"id"`
	Messages      []Message `json:"messages"`
	Authenticated bool      `json:"authenticated"`
	User          *User     `json:"user,omitempty"`
	AuthToken     string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewSession returns an unauthenticated session with an empty transcript.
func NewSession(id string, createdAt time.Time) Session {
	return Session{
		ID:        id,
		Messages:  make([]Message, 0, 16),
		CreatedAt: createdAt,
	}
}

// Clone returns a copy whose transcript does not alias the receiver's.
func (s Session) Clone() Session {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages), len(s.Messages)+2)
		copy(out.Messages, s.Messages)
	}
	if s.User != nil {
		user := s.User.Clone()
		out.User = &user
	}
	return out
}

// Email returns the signed-in user's address, or "" when anonymous.
func (s Session) Email() string {
	if s.User == nil {
		return ""
	}
	return s.User.Email
}
