package models

import "time"

type SourceStatus struct {
	Name       string    `json:"name"`
	Phase      string    `json:"phase"`
	FromCache  bool      `json:"fromCache"`
	Pending    bool      `json:"hasPendingWrites"`
	Refreshing bool      `json:"refreshing"`
	LastSynced time.Time `json:"lastSynced,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type SyncStatusResponse struct {
	Level      string         `json:"level"`
	Label      string         `json:"label"`
	Error      string         `json:"error,omitempty"`
	Refreshing bool           `json:"refreshing"`
	LastSynced time.Time      `json:"lastSynced,omitempty"`
	Sources    []SourceStatus `json:"sources"`
}
