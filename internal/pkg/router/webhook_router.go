package router

import (
	"github.com/ArmelNjike/MomoBill/app/controllers"
	"github.com/gofiber/fiber/v2"
)

type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/nkwa", controllers.HandlePaymentWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
