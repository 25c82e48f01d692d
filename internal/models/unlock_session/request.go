package models

type UnlockJournalRequest struct {
	Password string `json:"password" binding:"required"`
}

type UnlockCommentsRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SetNameRequest struct {
	Name string `json:"name" binding:"required"`
}
