package models

// UpdateNoteRequest is a partial edit; omitted fields are left unchanged.
type UpdateNoteRequest struct {
	Content  *string `json:"content"`
	Date     *string `json:"date"`
	Location *string `json:"location"`
}
