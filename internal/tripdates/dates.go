package tripdates

import (
	"fmt"
	"time"
)

// KeyLayout is the calendar-day key stored on every journal entry.
const KeyLayout = "2006-01-02"

var (
	// TripStart and TripEnd bound the itinerary, inclusive.
	TripStart = Date{Year: 2026, Month: time.January, Day: 23}
	TripEnd   = Date{Year: 2026, Month: time.February, Day: 15}
)

// Date is a calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Key returns the "YYYY-MM-DD" form of d.
func (d Date) Key() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// In returns local midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// ParseLocal turns a date key into local midnight in loc. It never goes through
// UTC, so the day-of-month is the one written in the key regardless of offset.
func ParseLocal(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(KeyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// Format returns the calendar day of t, in t's own location, as a key.
func Format(t time.Time) string {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}.Key()
}

// All lists every trip date key from TripStart to TripEnd.
func All() []string {
	start := TripStart.In(time.UTC)
	end := TripEnd.In(time.UTC)

	var keys []string
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
		keys = append(keys, Format(cur))
	}
	return keys
}

// IsTripDate reports whether key is one of the itinerary days.
func IsTripDate(key string) bool {
	if _, err := time.Parse(KeyLayout, key); err != nil {
		return false
	}
	// Keys are zero padded, so lexical order is calendar order.
	return key >= TripStart.Key() && key <= TripEnd.Key()
}

// IsPast reports whether key is strictly before the calendar day of today.
func IsPast(key string, today time.Time) bool {
	return key < Format(today)
}

// Clamp returns the trip day closest to today: TripStart before the trip,
// TripEnd after it.
func Clamp(today time.Time) string {
	key := Format(today)
	switch {
	case key < TripStart.Key():
		return TripStart.Key()
	case key > TripEnd.Key():
		return TripEnd.Key()
	default:
		return key
	}
}
