package chat

import "time"

// Action is a user-driven state transition applied with Reduce.
type Action interface {
	apply(Session) Session
}

// LoginSucceeded marks the session authenticated for user.
type LoginSucceeded struct {
	User  User
	Token string
}

// UserSubmitted appends the user's chat input.
type UserSubmitted struct {
	Content string
	At      time.Time
}

// AssistantReplied appends the webhook's output.
type AssistantReplied struct {
	Content string
	At      time.Time
}

// LoggedOut discards the session entirely.
type LoggedOut struct{}

// Reduce returns the session that results from applying action to s. It
// performs no I/O and never modifies s.
func Reduce(s Session, action Action) Session {
	if action == nil {
		return s.Clone()
	}
	return action.apply(s.Clone())
}

func (a LoginSucceeded) apply(s Session) Session {
	user := a.User.Clone()
	s.Authenticated = true
	s.User = &user
	s.AuthToken = a.Token
	return s
}

func (a UserSubmitted) apply(s Session) Session {
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: a.Content, CreatedAt: a.At})
	return s
}

func (a AssistantReplied) apply(s Session) Session {
	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: a.Content, CreatedAt: a.At})
	return s
}

func (LoggedOut) apply(Session) Session {
	return Session{}
}
