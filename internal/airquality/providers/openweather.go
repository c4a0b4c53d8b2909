package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

const openWeatherPollutionURL = "http://api.openweathermap.org/data/2.5/air_pollution/history"

// OpenWeatherProvider implements airquality.PollutionSource for the OpenWeatherMap
// air pollution history API.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, retry RetryConfig) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: openWeatherPollutionURL,
		httpCfg: HTTPClientConfig{Client: client, Retry: retry},
		circuit: newBreaker("openweather"),
	}
}

// WithBaseURL points the provider at a different endpoint.
func (p *OpenWeatherProvider) WithBaseURL(u string) *OpenWeatherProvider {
	p.baseURL = u
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// optionalFloat decodes a JSON number that may be absent or null.
type optionalFloat struct {
	v     float64
	valid bool
}

func (o *optionalFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	o.v, o.valid = v, true
	return nil
}

func (o optionalFloat) value() float64 {
	if !o.valid {
		return math.NaN()
	}
	return o.v
}

func (p *OpenWeatherProvider) PollutionHistory(ctx context.Context, loc airquality.Location, from, to time.Time) ([]airquality.PollutionReading, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
		values.Set("start", strconv.FormatInt(from.Unix(), 10))
		values.Set("end", strconv.FormatInt(to.Unix(), 10))
		values.Set("appid", p.apiKey)

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	var payload struct {
		List []struct {
			Dt         int64 `json:"dt"`
			Components struct {
				PM25 optionalFloat `json:"pm2_5"`
				PM10 optionalFloat `json:"pm10"`
				NO2  optionalFloat `json:"no2"`
				SO2  optionalFloat `json:"so2"`
				O3   optionalFloat `json:"o3"`
				CO   optionalFloat `json:"co"`
			} `json:"components"`
			Main struct {
				AQI optionalFloat `json:"aqi"`
			} `json:"main"`
		} `json:"list"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}

	readings := make([]airquality.PollutionReading, 0, len(payload.List))
	for _, item := range payload.List {
		c := item.Components
		readings = append(readings, airquality.PollutionReading{
			Timestamp: time.Unix(item.Dt, 0).UTC(),
			PM25:      c.PM25.value(),
			PM10:      c.PM10.value(),
			NO2:       c.NO2.value(),
			SO2:       c.SO2.value(),
			O3:        c.O3.value(),
			CO:        c.CO.value(),
			USAQI:     item.Main.AQI.value(),
		})
	}
	return readings, nil
}
