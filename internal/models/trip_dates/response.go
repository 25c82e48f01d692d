package models

type TripDatesResponse struct {
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Today     string   `json:"today"`
	Dates     []string `json:"dates"`
	WithNotes []string `json:"withNotes"`
}
