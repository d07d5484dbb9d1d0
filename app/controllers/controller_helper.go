package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ayumbro/Remindy/app/models"
	"github.com/ayumbro/Remindy/internal/pkg/billing"
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// BillingService is the part of billing.Service the HTTP layer uses.
type BillingService interface {
	CreateSubscription(ctx context.Context, in billing.NewSubscriptionInput) (*models.Subscription, error)
	SubscriptionStatus(ctx context.Context, id uint) (*billing.StatusReport, error)
	UpcomingBillingDates(ctx context.Context, id uint, count int) ([]calendar.Date, error)
	MarkAsPaid(ctx context.Context, id uint) (*models.PaymentRecord, error)
	RecordPayment(ctx context.Context, id uint, in billing.RecordPaymentInput) (*models.PaymentRecord, error)
	UpdatePaymentStatus(ctx context.Context, paymentID uint, status string) (*models.PaymentRecord, error)
	UpdateBillingConfiguration(ctx context.Context, id uint, in billing.UpdateBillingInput) (*models.Subscription, error)
	Forecast(ctx context.Context, userID uint, month calendar.Month) (*billing.Forecast, error)
}

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return uint(id), nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

// respondError maps billing errors onto HTTP responses.
func respondError(c *fiber.Ctx, err error) error {
	var configErr *billing.ConfigurationError
	var invariant *billing.InvariantViolation

	switch {
	case errors.As(err, &configErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_configuration", "message": err.Error(), "field": configErr.Field})
	case errors.Is(err, billing.ErrConfiguration):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_configuration", "message": err.Error()})
	case errors.As(err, &invariant):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invariant_violation", "message": err.Error(), "field": invariant.Field})
	case errors.Is(err, billing.ErrConcurrencyConflict):
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
	case errors.Is(err, billing.ErrNoBillingDue):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_billing_due", "message": err.Error()})
	case errors.Is(err, billing.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	}

	log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "internal server error"})
}
