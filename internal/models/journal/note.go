package models

import (
	"strings"
	"time"
)

// Authors who may write journal entries.
const (
	AuthorHarry = "Harry"
	AuthorTrent = "Trent"
)

var Authors = []string{AuthorHarry, AuthorTrent}

// CanonicalAuthor returns the configured spelling of name, or false when name
// is not one of Authors.
func CanonicalAuthor(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, a := range Authors {
		if strings.EqualFold(a, name) {
			return a, true
		}
	}
	return "", false
}

type Photo struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Note struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	Location  string    `json:"location,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	Photos    []Photo   `json:"photos"`
}
