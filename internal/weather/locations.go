package weather

import "io.winapps.triptracker/internal/tripdates"

type Location struct {
	Lat      float64
	Lng      float64
	Place    string
	Timezone string
}

const InTransit = "In Transit"

var (
	lima         = Location{-12.115, -77.042, "Lima, Peru", "America/Lima"}
	buenosAires  = Location{-34.603, -58.381, "Buenos Aires, Argentina", "America/Argentina/Buenos_Aires"}
	fallbackSite = Location{-15, -60, "South America", "America/Lima"}
)

var itinerary = map[string]Location{
	"2026-01-23": lima,
	"2026-01-24": lima,
	"2026-01-25": {-13.522, -71.967, "Cusco, Peru", "America/Lima"},
	"2026-01-26": {-13.250, -72.458, "Wayllabamba, Inca Trail", "America/Lima"},
	"2026-01-27": {-13.208, -72.492, "Warmiwañusqa Pass, Inca Trail", "America/Lima"},
	"2026-01-28": {-13.175, -72.525, "Phuyupatamarka, Inca Trail", "America/Lima"},
	"2026-01-29": {-13.163, -72.545, "Machu Picchu, Peru", "America/Lima"},
	"2026-01-30": {-12.593, -69.186, "Puerto Maldonado, Peru", "America/Lima"},
	"2026-01-31": {-12.8, -69.3, "Amazon Jungle, Peru", "America/Lima"},
	"2026-02-01": {-12.85, -69.25, "Amazon Jungle, Peru", "America/Lima"},
	"2026-02-02": buenosAires,
	"2026-02-03": buenosAires,
	"2026-02-04": {-49.333, -72.883, "El Chaltén, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-05": {-49.34, -72.93, "El Chaltén, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-06": {-49.27, -72.98, "El Chaltén, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-07": {-49.37, -72.85, "El Chaltén, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-08": {-50.33, -72.26, "El Calafate, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-09": {-50.47, -73.04, "Perito Moreno, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-10": {-50.32, -72.28, "El Calafate, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-11": {-34.558, -58.416, "Buenos Aires, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-12": {-34.634, -58.363, "Buenos Aires, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-13": {-34.558, -58.416, "Buenos Aires, Argentina", "America/Argentina/Buenos_Aires"},
	"2026-02-14": {-30, -140, InTransit, "Pacific/Auckland"},
	"2026-02-15": {-27.470, 153.026, "Brisbane, Australia", "Australia/Brisbane"},
}

// LocationFor returns where the family is on date. Dates outside the trip get
// a regional fallback.
func LocationFor(date string) Location {
	if loc, ok := itinerary[date]; ok {
		return loc
	}
	return fallbackSite
}

// Trackable reports whether date is a trip day with meaningful weather.
func Trackable(date string) bool {
	return tripdates.IsTripDate(date) && LocationFor(date).Place != InTransit
}
