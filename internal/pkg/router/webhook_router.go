package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/keerthivasan-d/pay/app/controllers"
)

// WebhookRouter registers the gateway-facing routes. These are authenticated
// by payload signature, not by API key, and must stay outside the rate
// limiter so bursts of gateway deliveries are not dropped.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Post("/razorpay", controllers.HandleRazorpayWebhook)
	webhooks.Post("/ccavenue", controllers.HandleCCAvenueResponse)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
