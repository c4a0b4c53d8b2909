package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

// WeatherAPIProvider implements airquality.WeatherForecaster for WeatherAPI.com.
// It is used as a fallback when Open-Meteo is unavailable.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, retry RetryConfig) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		httpCfg: HTTPClientConfig{Client: client, Retry: retry},
		circuit: newBreaker("weatherapi"),
	}
}

// WithBaseURL points the provider at a different endpoint.
func (p *WeatherAPIProvider) WithBaseURL(u string) *WeatherAPIProvider {
	p.baseURL = u
	return p
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) HourlyForecast(ctx context.Context, loc airquality.Location, days int) ([]airquality.WeatherReading, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi api key is not configured")
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be greater than zero")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI accepts "lat,lon" for q.
		values.Set("q", strconv.FormatFloat(loc.Lat, 'f', -1, 64)+","+strconv.FormatFloat(loc.Lon, 'f', -1, 64))
		values.Set("days", strconv.Itoa(days+1))
		values.Set("aqi", "no")
		values.Set("alerts", "no")

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Hour []struct {
					TimeEpoch  int64   `json:"time_epoch"`
					TempC      float64 `json:"temp_c"`
					Humidity   float64 `json:"humidity"`
					WindKph    float64 `json:"wind_kph"`
					PressureMb float64 `json:"pressure_mb"`
				} `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}

	var readings []airquality.WeatherReading
	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			// wind_kph matches Open-Meteo's default km/h unit
			readings = append(readings, airquality.WeatherReading{
				Timestamp:   time.Unix(h.TimeEpoch, 0).UTC(),
				Temperature: h.TempC,
				Humidity:    h.Humidity,
				Pressure:    h.PressureMb,
				WindSpeed:   h.WindKph,
			})
		}
	}
	return readings, nil
}

// FallbackForecaster tries each forecaster in order and returns the first non-empty result.
type FallbackForecaster struct {
	sources []airquality.WeatherForecaster
	log     *logrus.Entry
}

func NewFallbackForecaster(log *logrus.Entry, sources ...airquality.WeatherForecaster) *FallbackForecaster {
	return &FallbackForecaster{sources: sources, log: log}
}

func (f *FallbackForecaster) Name() string {
	return "fallback"
}

func (f *FallbackForecaster) HourlyForecast(ctx context.Context, loc airquality.Location, days int) ([]airquality.WeatherReading, error) {
	var errs []error
	for _, src := range f.sources {
		readings, err := src.HourlyForecast(ctx, loc, days)
		if err != nil {
			f.log.WithFields(logrus.Fields{"provider": src.Name(), "error": err}).Warn("weather forecast failed, trying next provider")
			errs = append(errs, err)
			continue
		}
		if len(readings) > 0 {
			return readings, nil
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: all weather forecasters failed: %w", airquality.ErrUpstreamFetch, errors.Join(errs...))
	}
	return nil, nil
}
