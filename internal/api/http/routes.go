package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

const serviceName = "aqi-forecast"

// DefaultHistoryDays is used when the days query parameter is absent.
const DefaultHistoryDays = 4

var validate = validator.New()

// NewApp creates the Fiber app with the central JSON error handler and the
// logger and recover middleware.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())
	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *airquality.Service) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	v1.Get("/aqi/forecast", func(c *fiber.Ctx) error {
		rows, err := service.CurrentForecasts(c.UserContext())
		if err != nil {
			if errors.Is(err, airquality.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Forecast not available yet.")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load forecasts")
		}

		out := make([]forecastView, len(rows))
		for i, r := range rows {
			out[i] = newForecastView(r)
		}
		return c.JSON(fiber.Map{
			"city":      service.Location().City,
			"forecasts": out,
		})
	})

	v1.Get("/aqi/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		history, err := service.History(c.UserContext(), req.Days)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load history")
		}

		out := make([]dailyView, len(history))
		for i, d := range history {
			out[i] = dailyView{Date: d.Date.Format(time.DateOnly), AvgAQI: d.AvgAQI, Samples: d.Samples}
		}
		return c.JSON(fiber.Map{
			"city":    service.Location().City,
			"days":    req.Days,
			"history": out,
		})
	})

	v1.Get("/models/metrics/latest", func(c *fiber.Ctx) error {
		production, others, err := service.LatestMetrics(c.UserContext())
		if err != nil {
			if errors.Is(err, airquality.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "No model metrics available for today yet.")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load model metrics")
		}
		if others == nil {
			others = []airquality.ModelRun{}
		}
		return c.JSON(fiber.Map{
			"production_model": production,
			"other_models":     others,
		})
	})
}

type forecastView struct {
	Date         string    `json:"date"`
	AvgAQI       float64   `json:"avg_aqi"`
	ModelVersion int       `json:"model_version"`
	Candidate    string    `json:"candidate"`
	CreatedAt    time.Time `json:"created_at"`
}

func newForecastView(r airquality.ForecastRow) forecastView {
	return forecastView{
		Date:         r.Date.Format(time.DateOnly),
		AvgAQI:       r.AvgAQI,
		ModelVersion: r.ModelVersion,
		Candidate:    r.Candidate,
		CreatedAt:    r.CreatedAt,
	}
}

type dailyView struct {
	Date    string  `json:"date"`
	AvgAQI  float64 `json:"avg_aqi"`
	Samples int     `json:"samples"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Days int `validate:"min=1,max=90"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	raw := c.Query("days")
	if raw == "" {
		h.Days = DefaultHistoryDays
		return nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return errors.New("days must be an integer")
	}
	h.Days = days
	return nil
}
