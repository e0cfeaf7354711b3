package chat

import (
	"maps"
	"time"
)

// User is the identity provider's view of the signed-in account. Fields the
// provider adds beyond these are ignored.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Role             string         `json:"role,omitempty"`
	Audience         string         `json:"aud,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Clone returns a copy that shares no maps or pointers with u.
func (u User) Clone() User {
	out := u
	if u.EmailConfirmedAt != nil {
		at := *u.EmailConfirmedAt
		out.EmailConfirmedAt = &at
	}
	out.UserMetadata = maps.Clone(u.UserMetadata)
	return out
}
