package router

import (
	"time"

	"github.com/ArmelNjike/MomoBill/app/controllers"
	"github.com/ArmelNjike/MomoBill/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"service": "momobill",
			"status":  "ok",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Post("/subscriptions", controllers.HandleCreateSubscription)
	v1.Get("/subscriptions/:id", controllers.HandleGetSubscription)
	v1.Post("/subscriptions/:id/charge", controllers.HandleChargeSubscription)
	v1.Post("/subscriptions/:id/cancel", controllers.HandleCancelSubscription)

	v1.Get("/users/:userID/access", controllers.HandleCheckAccess)
	v1.Get("/users/:userID/payments", controllers.HandleListUserPayments)
	v1.Get("/users/:userID/notifications", controllers.HandleListUserNotifications)
	v1.Post("/notifications/:id/read", controllers.HandleMarkNotificationRead)

	v1.Get("/payments/:reference/status", controllers.HandleGetPaymentStatus)

	// Operator endpoints
	admin := v1.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}))
	admin.Post("/scheduler/run", controllers.HandleRunBillingSweep)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
