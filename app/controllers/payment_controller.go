package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// HandleListUserPayments returns the charge history for a user.
func HandleListUserPayments(c *fiber.Ctx) error {
	payments, err := billingService.ListPayments(c.Context(), c.Params("userID"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

// HandleGetPaymentStatus polls the aggregator for the current status of a
// charge reference. The authoritative settlement still arrives via webhook.
func HandleGetPaymentStatus(c *fiber.Ctx) error {
	reference := c.Params("reference")
	if reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reference missing"})
	}

	status, err := billingService.PollPaymentStatus(c.Context(), reference)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"reference": reference, "status": status})
}

// HandleListUserNotifications returns a user's notifications, newest first.
func HandleListUserNotifications(c *fiber.Ctx) error {
	notifications, err := billingService.ListNotifications(c.Context(), c.Params("userID"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"notifications": notifications})
}

// HandleMarkNotificationRead marks one notification as read.
func HandleMarkNotificationRead(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid notification id"})
	}
	if err := billingService.MarkNotificationRead(c.Context(), uint(id)); err != nil {
		return jsonError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
