package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ayumbro/Remindy/internal/pkg/billing"
)

const maxBillingDates = 120

type SubscriptionController struct {
	service BillingService
}

func NewSubscriptionController(service BillingService) *SubscriptionController {
	return &SubscriptionController{service: service}
}

// HandleCreate stores a new subscription and returns it with 201.
func (sc *SubscriptionController) HandleCreate(c *fiber.Ctx) error {
	var in billing.NewSubscriptionInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	sub, err := sc.service.CreateSubscription(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleStatus returns next billing date, status flags and monthly equivalent.
func (sc *SubscriptionController) HandleStatus(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	report, err := sc.service.SubscriptionStatus(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// HandleBillingDates lists the next unpaid occurrences.
func (sc *SubscriptionController) HandleBillingDates(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	count := c.QueryInt("count", 12)
	if count < 1 || count > maxBillingDates {
		return badRequest(c, "count must be between 1 and 120")
	}

	dates, err := sc.service.UpcomingBillingDates(c.UserContext(), id, count)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"subscription_id": id, "billing_dates": dates})
}

// HandleMarkPaid settles the next billing date at the subscription price.
func (sc *SubscriptionController) HandleMarkPaid(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	payment, err := sc.service.MarkAsPaid(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// HandleRecordPayment stores a manually entered payment.
func (sc *SubscriptionController) HandleRecordPayment(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var in billing.RecordPaymentInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	payment, err := sc.service.RecordPayment(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// HandleUpdateBilling edits the billing configuration.
func (sc *SubscriptionController) HandleUpdateBilling(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var in billing.UpdateBillingInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	sub, err := sc.service.UpdateBillingConfiguration(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sub)
}
