package models

import (
	journal "io.winapps.triptracker/internal/models/journal"
)

type CreateNoteRequest struct {
	Author   string          `json:"author" binding:"required"`
	Content  string          `json:"content"`
	Date     string          `json:"date" binding:"required"`
	Location string          `json:"location"`
	Timezone string          `json:"timezone"`
	Photos   []journal.Photo `json:"photos"`
}
