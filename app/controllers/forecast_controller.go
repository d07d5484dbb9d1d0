package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

type ForecastController struct {
	service BillingService
	today   func() calendar.Date
}

// NewForecastController uses today to pick the month when none is given.
func NewForecastController(service BillingService, today func() calendar.Date) *ForecastController {
	return &ForecastController{service: service, today: today}
}

// HandleForecast returns per-currency totals for ?month=YYYY-MM.
func (fc *ForecastController) HandleForecast(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "userID")
	if err != nil {
		return badRequest(c, err.Error())
	}

	month := calendar.MonthOf(fc.today())
	if raw := c.Query("month"); raw != "" {
		month, err = calendar.ParseMonth(raw)
		if err != nil {
			return badRequest(c, "month must be formatted as YYYY-MM")
		}
	}

	forecast, err := fc.service.Forecast(c.UserContext(), userID, month)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(forecast)
}
