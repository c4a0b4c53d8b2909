package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

type AppConfig struct {
	Location     airquality.Location
	BackfillDays int `env:"BACKFILL_DAYS" validate:"min=1,max=365"`

	OpenWeatherAPIKey string `env:"OPENWEATHER_API_KEY"`
	WeatherAPIKey     string `env:"WEATHERAPI_API_KEY"`

	// Upstream calls: MaxRetries total attempts, RetryDelay between them.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" validate:"gt=0"`
	MaxRetries  int           `env:"MAX_RETRIES" validate:"min=1,max=10"`
	RetryDelay  time.Duration `env:"RETRY_DELAY" validate:"gte=0"`

	StoreBackend                string `env:"STORE_BACKEND" validate:"oneof=memory mongo"`
	MongoURI                    string `env:"MONGO_URI" validate:"required_if=StoreBackend mongo"`
	MongoDB                     string `env:"MONGO_DB" validate:"required"`
	MongoObservationsCollection string `env:"MONGO_OBSERVATIONS_COLLECTION" validate:"required"`
	MongoFeaturesCollection     string `env:"MONGO_COLLECTION" validate:"required"`
	MongoForecastsCollection    string `env:"MONGO_FORECASTS_COLLECTION" validate:"required"`

	RegistryDriver string `env:"REGISTRY_DRIVER" validate:"oneof=sqlite postgres"`
	RegistryDSN    string `env:"REGISTRY_DSN" validate:"required"`
	ModelName      string `env:"MODEL_NAME" validate:"required"`

	// Empty RedisAddr disables run locking.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" validate:"gte=0"`
	LockTTL       time.Duration `env:"LOCK_TTL" validate:"gt=0"`

	IngestWindowHours     int                `env:"INGEST_WINDOW_HOURS" validate:"min=1"`
	InferenceHistoryHours int                `env:"INFERENCE_HISTORY_HOURS" validate:"min=1"`
	OutlierQuantile       float64            `env:"OUTLIER_QUANTILE" validate:"gt=0,lte=1"`
	OutlierFixedCaps      map[string]float64 `env:"OUTLIER_FIXED_CAPS"`

	IngestCron string `env:"INGEST_CRON" validate:"required"`
	TrainCron  string `env:"TRAIN_CRON" validate:"required"`
	InferCron  string `env:"INFER_CRON" validate:"required"`

	Port      string `env:"PORT" validate:"required,numeric"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=json text"`
}

var defaults = map[string]any{
	"CITY":                          "Karachi",
	"LAT":                           "24.8607",
	"LON":                           "67.0011",
	"BACKFILL_DAYS":                 "90",
	"HTTP_TIMEOUT":                  "15s",
	"MAX_RETRIES":                   "3",
	"RETRY_DELAY":                   "60s",
	"STORE_BACKEND":                 "memory",
	"MONGO_DB":                      "aqi_prediction",
	"MONGO_OBSERVATIONS_COLLECTION": "observations_hourly",
	"MONGO_COLLECTION":              "features_karachi_hourly",
	"MONGO_FORECASTS_COLLECTION":    "aqi_forecasts_daily",
	"REGISTRY_DRIVER":               "sqlite",
	"REGISTRY_DSN":                  "aqi_registry.db",
	"MODEL_NAME":                    "AQI_Forecast_Model",
	"REDIS_DB":                      "0",
	"LOCK_TTL":                      "2h",
	"INGEST_WINDOW_HOURS":           "168",
	"INFERENCE_HISTORY_HOURS":       "96",
	"OUTLIER_QUANTILE":              "0.99",
	"INGEST_CRON":                   "5 * * * *",
	"TRAIN_CRON":                    "0 1 * * *",
	"INFER_CRON":                    "30 1 * * *",
	"PORT":                          "8080",
	"LOG_LEVEL":                     "info",
	"LOG_FORMAT":                    "json",
}

// Load reads configuration from .env and the environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	p := parser{v: v}
	cfg := &AppConfig{
		Location: airquality.Location{
			City: v.GetString("CITY"),
			Lat:  p.floatVar("LAT"),
			Lon:  p.floatVar("LON"),
		},
		BackfillDays:                p.intVar("BACKFILL_DAYS"),
		OpenWeatherAPIKey:           v.GetString("OPENWEATHER_API_KEY"),
		WeatherAPIKey:               v.GetString("WEATHERAPI_API_KEY"),
		HTTPTimeout:                 p.durationVar("HTTP_TIMEOUT"),
		MaxRetries:                  p.intVar("MAX_RETRIES"),
		RetryDelay:                  p.durationVar("RETRY_DELAY"),
		StoreBackend:                strings.ToLower(v.GetString("STORE_BACKEND")),
		MongoURI:                    v.GetString("MONGO_URI"),
		MongoDB:                     v.GetString("MONGO_DB"),
		MongoObservationsCollection: v.GetString("MONGO_OBSERVATIONS_COLLECTION"),
		MongoFeaturesCollection:     v.GetString("MONGO_COLLECTION"),
		MongoForecastsCollection:    v.GetString("MONGO_FORECASTS_COLLECTION"),
		RegistryDriver:              strings.ToLower(v.GetString("REGISTRY_DRIVER")),
		RegistryDSN:                 v.GetString("REGISTRY_DSN"),
		ModelName:                   v.GetString("MODEL_NAME"),
		RedisAddr:                   v.GetString("REDIS_ADDR"),
		RedisPassword:               v.GetString("REDIS_PASSWORD"),
		RedisDB:                     p.intVar("REDIS_DB"),
		LockTTL:                     p.durationVar("LOCK_TTL"),
		IngestWindowHours:           p.intVar("INGEST_WINDOW_HOURS"),
		InferenceHistoryHours:       p.intVar("INFERENCE_HISTORY_HOURS"),
		OutlierQuantile:             p.floatVar("OUTLIER_QUANTILE"),
		OutlierFixedCaps:            p.capsVar("OUTLIER_FIXED_CAPS"),
		IngestCron:                  v.GetString("INGEST_CRON"),
		TrainCron:                   v.GetString("TRAIN_CRON"),
		InferCron:                   v.GetString("INFER_CRON"),
		Port:                        v.GetString("PORT"),
		LogLevel:                    v.GetString("LOG_LEVEL"),
		LogFormat:                   strings.ToLower(v.GetString("LOG_FORMAT")),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.Location.City == "" {
		return nil, fmt.Errorf("invalid CITY: must not be empty")
	}

	if err := newValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newValidator reports fields by their env var name.
func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return validate
}

// parser converts viper strings and keeps the first error.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) intVar(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(p.v.GetString(key)))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) floatVar(key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(p.v.GetString(key)), 64)
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *parser) durationVar(key string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(p.v.GetString(key)))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

// capsVar parses "pm2_5=500,pm10=600".
func (p *parser) capsVar(key string) map[string]float64 {
	raw := strings.TrimSpace(p.v.GetString(key))
	if raw == "" {
		return nil
	}
	out := map[string]float64{}
	for _, pair := range strings.Split(raw, ",") {
		col, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || col == "" {
			p.fail(key, fmt.Errorf("expected column=value, got %q", pair))
			return nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			p.fail(key, err)
			return nil
		}
		out[strings.TrimSpace(col)] = f
	}
	return out
}
