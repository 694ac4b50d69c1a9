package controllers

import (
	"errors"

	"github.com/ArmelNjike/MomoBill/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// SignatureHeader carries the hex HMAC of the raw request body.
const SignatureHeader = "X-Signature"

// HandlePaymentWebhook receives charge-outcome notifications from the
// aggregator. The signature is checked against the raw body before anything
// is parsed; deliveries for unknown references are acknowledged so the
// aggregator stops retrying them.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	raw := c.Body()

	if !billingService.VerifyWebhook(raw, c.Get(SignatureHeader)) {
		log.Warnf("[Webhook] rejected delivery with bad signature from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
	}

	result, err := billingService.HandleWebhook(c.Context(), raw)
	if err != nil {
		if errors.Is(err, billing.ErrMalformedPayload) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Errorf("[Webhook] processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook processing failed"})
	}

	return c.JSON(result)
}
