package models

import (
	journal "io.winapps.triptracker/internal/models/journal"
)

type UploadPhotoResponse struct {
	Photo journal.Photo `json:"photo"`
	// TakenOn is the capture day read from EXIF, when the file had one.
	TakenOn string `json:"takenOn,omitempty"`
	// TripDate is TakenOn when it falls within the trip.
	TripDate string `json:"tripDate,omitempty"`
}
