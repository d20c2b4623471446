package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/keerthivasan-d/pay/app/controllers"
	"github.com/keerthivasan-d/pay/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "pay api",
		})
	})

	// API v1 routes; lifecycle operations are internal and key-protected
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	subs := v1.Group("/billing/subscriptions")
	subs.Post("/", controllers.HandleSubscribe)
	subs.Get("/:id", controllers.HandleGetSubscription)
	subs.Post("/:id/cancel", controllers.HandleCancelSubscription)
	subs.Post("/:id/cancel_now", controllers.HandleCancelSubscriptionNow)
	subs.Post("/:id/pause", controllers.HandlePauseSubscription)
	subs.Post("/:id/resume", controllers.HandleResumeSubscription)
	subs.Post("/:id/swap", controllers.HandleSwapSubscription)
	subs.Post("/:id/quantity", controllers.HandleChangeSubscriptionQuantity)
	subs.Post("/:id/retry_payment", controllers.HandleRetrySubscriptionPayment)

	// out-of-band reconciliation for missed webhook deliveries
	syncs := v1.Group("/billing/sync")
	syncs.Post("/charge", controllers.HandleSyncCharge)
	syncs.Post("/subscription", controllers.HandleSyncSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
