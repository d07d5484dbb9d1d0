package router

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

func today() calendar.Date { return calendar.MustParse("2024-05-01") }

func TestApiRouterRegistersBillingRoutes(t *testing.T) {
	app := fiber.New()
	InstallRouter(app, NewApiRouter(nil, today, nil, 0))

	registered := map[string]bool{}
	for _, r := range app.GetRoutes(true) {
		registered[r.Method+" "+r.Path] = true
	}

	for _, want := range []string{
		"POST /api/v1/subscriptions",
		"GET /api/v1/subscriptions/:id/status",
		"GET /api/v1/subscriptions/:id/billing-dates",
		"POST /api/v1/subscriptions/:id/mark-paid",
		"POST /api/v1/subscriptions/:id/payments",
		"PUT /api/v1/subscriptions/:id/billing",
		"PATCH /api/v1/payments/:id/status",
		"GET /api/v1/users/:userID/forecast",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestApiRouterRateLimit(t *testing.T) {
	app := fiber.New()
	InstallRouter(app, NewApiRouter(nil, today, nil, 2))

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestBadIDNeverReachesService(t *testing.T) {
	app := fiber.New()
	InstallRouter(app, NewApiRouter(nil, today, nil, 0))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/subscriptions/0/mark-paid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
