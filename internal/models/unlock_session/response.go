package models

import "time"

type SessionResponse struct {
	ID               string    `json:"id"`
	JournalUnlocked  bool      `json:"journalUnlocked"`
	CommentsUnlocked bool      `json:"commentsUnlocked"`
	CanComment       bool      `json:"canComment"`
	DisplayName      string    `json:"displayName"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}
