package models

import "time"

type Comment struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"noteId"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
