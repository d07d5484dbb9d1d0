package controllers

import (
	"github.com/gofiber/fiber/v2"
)

type PaymentController struct {
	service BillingService
}

func NewPaymentController(service BillingService) *PaymentController {
	return &PaymentController{service: service}
}

type paymentStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateStatus changes a payment status. Refunding a paid record
// re-opens its billing date.
func (pc *PaymentController) HandleUpdateStatus(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req paymentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Status == "" {
		return badRequest(c, "status missing")
	}

	payment, err := pc.service.UpdatePaymentStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payment)
}
