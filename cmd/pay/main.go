package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/keerthivasan-d/pay/app/controllers"
	"github.com/keerthivasan-d/pay/internal/pkg/billing"
	"github.com/keerthivasan-d/pay/internal/pkg/cache"
	"github.com/keerthivasan-d/pay/internal/pkg/database"
	"github.com/keerthivasan-d/pay/internal/pkg/env"
	"github.com/keerthivasan-d/pay/internal/pkg/jobqueue"
	"github.com/keerthivasan-d/pay/internal/pkg/mail"
	"github.com/keerthivasan-d/pay/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// wire the billing service into the webhook pipeline and controllers
	gateway := billing.NewRazorpayClientFromEnv()
	svc := billing.NewServiceFromDB(database.GetDB(), gateway)
	hooks := billing.ConfigureRazorpayWebhooks(svc, mail.SendMail)
	jobqueue.ConfigureProcessors(svc, hooks)
	controllers.SetBillingService(svc)

	// background workers for webhook processing and re-syncs
	jobqueue.GetManager().Start()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "pay",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
