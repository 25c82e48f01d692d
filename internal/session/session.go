// Package session holds the per-device unlock flags and display name, the
// shared-secret gate that sets them, and the broker that announces changes.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrNameRequired      = errors.New("display name is required")
	ErrSessionRequired   = errors.New("session id is required")
)

// Session is the state of one device. It is not a security boundary.
type Session struct {
	ID               string    `json:"id"`
	JournalUnlocked  bool      `json:"journalUnlocked"`
	CommentsUnlocked bool      `json:"commentsUnlocked"`
	DisplayName      string    `json:"displayName,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Actor is who is performing a mutation, derived from a Session.
type Actor struct {
	SessionID  string
	Name       string
	IsOwner    bool
	CanComment bool
}

func (s Session) Actor() Actor {
	return Actor{
		SessionID:  s.ID,
		Name:       strings.TrimSpace(s.DisplayName),
		IsOwner:    s.JournalUnlocked,
		CanComment: s.CommentsUnlocked || s.JournalUnlocked,
	}
}

// Is reports whether the actor's display name matches name, ignoring case.
func (a Actor) Is(name string) bool {
	return a.Name != "" && strings.EqualFold(a.Name, strings.TrimSpace(name))
}

// Store persists sessions. Get returns an empty session carrying id when
// nothing is stored for it.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, s Session) error
}
