package models

import (
	journal "io.winapps.triptracker/internal/models/journal"
)

type CreateCommentResponse struct {
	Status  string          `json:"status"`
	Comment journal.Comment `json:"comment"`
}

type ListCommentsResponse struct {
	Comments []journal.Comment `json:"comments"`
	Count    int               `json:"count"`
}
