package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ayumbro/Remindy/app/controllers"
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

const (
	DefaultRateLimit       = 120
	DefaultRateLimitWindow = time.Minute
)

// ApiRouter exposes the billing operations under /api/v1.
type ApiRouter struct {
	service   controllers.BillingService
	today     func() calendar.Date
	storage   fiber.Storage
	rateLimit int
}

// NewApiRouter wires the billing controllers. A nil storage keeps the rate
// limiter counters in memory.
func NewApiRouter(service controllers.BillingService, today func() calendar.Date, storage fiber.Storage, rateLimit int) *ApiRouter {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	return &ApiRouter{service: service, today: today, storage: storage, rateLimit: rateLimit}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        h.rateLimit,
		Expiration: DefaultRateLimitWindow,
		Storage:    h.storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests", "message": "rate limit exceeded"})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	subscriptions := controllers.NewSubscriptionController(h.service)
	v1.Post("/subscriptions", subscriptions.HandleCreate)
	v1.Get("/subscriptions/:id/status", subscriptions.HandleStatus)
	v1.Get("/subscriptions/:id/billing-dates", subscriptions.HandleBillingDates)
	v1.Post("/subscriptions/:id/mark-paid", subscriptions.HandleMarkPaid)
	v1.Post("/subscriptions/:id/payments", subscriptions.HandleRecordPayment)
	v1.Put("/subscriptions/:id/billing", subscriptions.HandleUpdateBilling)

	payments := controllers.NewPaymentController(h.service)
	v1.Patch("/payments/:id/status", payments.HandleUpdateStatus)

	forecasts := controllers.NewForecastController(h.service, h.today)
	v1.Get("/users/:userID/forecast", forecasts.HandleForecast)
}
