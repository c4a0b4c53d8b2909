package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

const (
	openMeteoArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"
	openMeteoForecastURL = "https://api.open-meteo.com/v1/forecast"
	openMeteoHourly      = "temperature_2m,relativehumidity_2m,pressure_msl,windspeed_10m"
	openMeteoTimeLayout  = "2006-01-02T15:04"

	// archiveLag is how far behind real time the archive API is reliably populated.
	archiveLag = 5 * 24 * time.Hour
	// maxPastDays is the forecast API limit for past_days.
	maxPastDays = 92
)

// OpenMeteoProvider implements airquality.WeatherSource and airquality.WeatherForecaster
// for Open-Meteo. No API key is required.
type OpenMeteoProvider struct {
	name        string
	archiveURL  string
	forecastURL string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
	clock       clockwork.Clock
}

func NewOpenMeteoProvider(client *http.Client, retry RetryConfig, clock clockwork.Clock) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:        "openmeteo",
		archiveURL:  openMeteoArchiveURL,
		forecastURL: openMeteoForecastURL,
		httpCfg:     HTTPClientConfig{Client: client, Retry: retry},
		circuit:     newBreaker("openmeteo"),
		clock:       clock,
	}
}

// WithBaseURLs points the provider at different archive and forecast endpoints.
func (p *OpenMeteoProvider) WithBaseURLs(archiveURL, forecastURL string) *OpenMeteoProvider {
	p.archiveURL = archiveURL
	p.forecastURL = forecastURL
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// HourlyWeather returns observed weather for [from, to]. Ranges that end before the archive
// lag are served from the archive API, recent ranges from the forecast API's past_days.
func (p *OpenMeteoProvider) HourlyWeather(ctx context.Context, loc airquality.Location, from, to time.Time) ([]airquality.WeatherReading, error) {
	from, to = from.UTC(), to.UTC()
	now := p.clock.Now().UTC()

	values := p.baseValues(loc)
	endpoint := p.archiveURL
	if to.After(now.Add(-archiveLag)) {
		endpoint = p.forecastURL
		pastDays := int(math.Ceil(now.Sub(from).Hours()/24)) + 1
		if pastDays > maxPastDays {
			pastDays = maxPastDays
		}
		values.Set("past_days", strconv.Itoa(pastDays))
		values.Set("forecast_days", "1")
	} else {
		values.Set("start_date", from.Format(time.DateOnly))
		values.Set("end_date", to.Format(time.DateOnly))
	}

	readings, err := p.fetch(ctx, endpoint, values)
	if err != nil {
		return nil, err
	}

	out := readings[:0]
	for _, r := range readings {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// HourlyForecast returns hourly weather from today's midnight through the next days days.
func (p *OpenMeteoProvider) HourlyForecast(ctx context.Context, loc airquality.Location, days int) ([]airquality.WeatherReading, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be greater than zero")
	}
	values := p.baseValues(loc)
	// today counts as the first forecast day
	values.Set("forecast_days", strconv.Itoa(days+1))
	return p.fetch(ctx, p.forecastURL, values)
}

func (p *OpenMeteoProvider) baseValues(loc airquality.Location) url.Values {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	values.Set("hourly", openMeteoHourly)
	values.Set("timezone", "UTC")
	return values
}

func (p *OpenMeteoProvider) fetch(ctx context.Context, endpoint string, values url.Values) ([]airquality.WeatherReading, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", endpoint, values.Encode()), nil)
	}

	var payload struct {
		Hourly struct {
			Time        []string   `json:"time"`
			Temperature []*float64 `json:"temperature_2m"`
			Humidity    []*float64 `json:"relativehumidity_2m"`
			Pressure    []*float64 `json:"pressure_msl"`
			WindSpeed   []*float64 `json:"windspeed_10m"`
		} `json:"hourly"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}

	h := payload.Hourly
	readings := make([]airquality.WeatherReading, 0, len(h.Time))
	for i, raw := range h.Time {
		ts, err := time.ParseInLocation(openMeteoTimeLayout, raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: openmeteo: bad time %q: %v", airquality.ErrUpstreamFetch, raw, err)
		}
		readings = append(readings, airquality.WeatherReading{
			Timestamp:   ts,
			Temperature: at(h.Temperature, i),
			Humidity:    at(h.Humidity, i),
			Pressure:    at(h.Pressure, i),
			WindSpeed:   at(h.WindSpeed, i),
		})
	}
	return readings, nil
}

// at returns the i-th value of a nullable series, NaN when absent.
func at(series []*float64, i int) float64 {
	if i >= len(series) || series[i] == nil {
		return math.NaN()
	}
	return *series[i]
}
