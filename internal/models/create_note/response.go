package models

import (
	journal "io.winapps.triptracker/internal/models/journal"
)

// CreateNoteResponse carries the note as inserted locally. While the status
// is pending its id is still the temporary one.
type CreateNoteResponse struct {
	Status string       `json:"status"`
	Note   journal.Note `json:"note"`
}

type ListNotesResponse struct {
	Notes         []journal.Note `json:"notes"`
	CommentCounts map[string]int `json:"commentCounts"`
}
