package models

type UpdateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}
