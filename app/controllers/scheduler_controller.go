package controllers

import (
	"github.com/ArmelNjike/MomoBill/internal/pkg/scheduler"
	"github.com/gofiber/fiber/v2"
)

// HandleRunBillingSweep triggers one sweep outside the regular schedule and
// returns its report. Intended for operators; the router protects it.
func HandleRunBillingSweep(c *fiber.Ctx) error {
	report, err := scheduler.GetManager().RunNow(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}
