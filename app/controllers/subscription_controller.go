package controllers

import (
	"github.com/ArmelNjike/MomoBill/internal/pkg/billing"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

type createSubscriptionRequest struct {
	UserID  string `json:"user_id" validate:"required,max=64"`
	Phone   string `json:"phone" validate:"required,min=9,max=15"`
	Channel string `json:"channel" validate:"required,max=32"`
	PlanID  string `json:"plan_id" validate:"required,max=64"`
}

// HandleCreateSubscription opens a trial subscription.
// Request: JSON { "user_id", "phone", "channel", "plan_id" }
func HandleCreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sub, err := billingService.Initiate(c.Context(), billing.InitiateInput{
		UserID:  req.UserID,
		Phone:   req.Phone,
		Channel: req.Channel,
		PlanID:  req.PlanID,
	})
	if err != nil {
		return jsonError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleGetSubscription returns the last-known-good state of one subscription.
func HandleGetSubscription(c *fiber.Ctx) error {
	sub, err := billingService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(sub)
}

// HandleChargeSubscription triggers an immediate charge for one subscription.
func HandleChargeSubscription(c *fiber.Ctx) error {
	out, err := billingService.ChargeNow(c.Context(), c.Params("id"))
	if err != nil {
		if errorStatus(err) == fiber.StatusInternalServerError {
			// Submission reached the aggregator and failed there.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(out)
}

type cancelSubscriptionRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// HandleCancelSubscription terminates a subscription immediately.
func HandleCancelSubscription(c *fiber.Ctx) error {
	var req cancelSubscriptionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	if req.Reason == "" {
		req.Reason = "Canceled by user"
	}

	sub, err := billingService.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(sub)
}

// HandleCheckAccess reports whether a user currently gets product access.
func HandleCheckAccess(c *fiber.Ctx) error {
	userID := c.Params("userID")
	granted, err := billingService.HasAccess(c.Context(), userID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"user_id": userID, "has_access": granted})
}
