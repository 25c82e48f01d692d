package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	journal "io.winapps.triptracker/internal/models/journal"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"
)

var ErrNoData = errors.New("no weather data returned")

var descriptions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// Describe returns the WMO weather code description.
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "Unknown"
}

type ClientConfig struct {
	ForecastURL string
	ArchiveURL  string
	HTTPClient  *http.Client
	// RequestsPerSecond throttles outbound calls; zero means 5.
	RequestsPerSecond float64
}

// Client talks to the Open-Meteo forecast and archive APIs.
type Client struct {
	forecastURL string
	archiveURL  string
	http        *http.Client
	limiter     *rate.Limiter
	now         func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = DefaultArchiveURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	return &Client{
		forecastURL: cfg.ForecastURL,
		archiveURL:  cfg.ArchiveURL,
		http:        cfg.HTTPClient,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		now:         time.Now,
	}
}

type dailyResponse struct {
	Daily struct {
		Time              []string   `json:"time"`
		TempMax           []*float64 `json:"temperature_2m_max"`
		TempMin           []*float64 `json:"temperature_2m_min"`
		PrecipProbability []*float64 `json:"precipitation_probability_max"`
		PrecipSum         []*float64 `json:"precipitation_sum"`
		WeatherCode       []*int     `json:"weather_code"`
	} `json:"daily"`
}

func first[T any](values []*T) T {
	var zero T
	if len(values) == 0 || values[0] == nil {
		return zero
	}
	return *values[0]
}

// Fetch returns the weather for date. Days before today come from the
// archive; today and later from the forecast. In-transit days have none.
func (c *Client) Fetch(ctx context.Context, date, today string) (journal.DayWeather, error) {
	loc := LocationFor(date)
	if loc.Place == InTransit {
		return journal.DayWeather{}, ErrNoData
	}
	historical := date < today

	endpoint, daily := c.forecastURL, "temperature_2m_max,temperature_2m_min,precipitation_probability_max,weather_code"
	if historical {
		endpoint, daily = c.archiveURL, "temperature_2m_max,temperature_2m_min,precipitation_sum,weather_code"
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprint(loc.Lat))
	q.Set("longitude", fmt.Sprint(loc.Lng))
	q.Set("daily", daily)
	q.Set("timezone", loc.Timezone)
	q.Set("start_date", date)
	q.Set("end_date", date)

	var body dailyResponse
	if err := c.get(ctx, endpoint+"?"+q.Encode(), &body); err != nil {
		return journal.DayWeather{}, err
	}
	if len(body.Daily.Time) == 0 {
		return journal.DayWeather{}, ErrNoData
	}

	code := first(body.Daily.WeatherCode)
	precip := int(math.Round(first(body.Daily.PrecipProbability)))
	if historical {
		precip = 0
		if sum := first(body.Daily.PrecipSum); sum > 0 {
			precip = int(math.Min(100, math.Round(sum*10)))
		}
	}

	return journal.DayWeather{
		ID:                  date,
		Date:                date,
		Location:            loc.Place,
		Lat:                 loc.Lat,
		Lng:                 loc.Lng,
		TempMax:             int(math.Round(first(body.Daily.TempMax))),
		TempMin:             int(math.Round(first(body.Daily.TempMin))),
		PrecipitationChance: precip,
		WeatherCode:         code,
		WeatherDescription:  Describe(code),
		FetchedAt:           c.now(),
		IsHistorical:        historical,
	}, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode weather response: %w", err)
	}
	return nil
}
