package models

import "time"

// DayWeather is keyed by its date; one document per trip day.
type DayWeather struct {
	ID                  string    `json:"id"`
	Date                string    `json:"date"`
	Location            string    `json:"location"`
	Lat                 float64   `json:"lat"`
	Lng                 float64   `json:"lng"`
	TempMax             int       `json:"tempMax"`
	TempMin             int       `json:"tempMin"`
	PrecipitationChance int       `json:"precipitationChance"`
	WeatherCode         int       `json:"weatherCode"`
	WeatherDescription  string    `json:"weatherDescription"`
	FetchedAt           time.Time `json:"fetchedAt"`
	IsHistorical        bool      `json:"isHistorical"`
}
