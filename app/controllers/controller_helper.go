package controllers

import (
	"errors"

	"github.com/ArmelNjike/MomoBill/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
)

var billingService *billing.Service

// InitializeBillingController wires the shared billing service into the
// handler functions. Must run before the router installs any billing route.
func InitializeBillingController(svc *billing.Service) {
	billingService = svc
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, billing.ErrSubscriptionNotFound),
		errors.Is(err, billing.ErrPlanNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, billing.ErrDuplicateSubscription),
		errors.Is(err, billing.ErrSubscriptionCanceled):
		return fiber.StatusConflict
	case errors.Is(err, billing.ErrChannelOffline):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, billing.ErrInvalidAmount):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, billing.ErrMalformedPayload):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func jsonError(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
}
