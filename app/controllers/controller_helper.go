package controllers

import (
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/keerthivasan-d/pay/internal/pkg/billing"
)

var (
	svcMu      sync.RWMutex
	billingSvc *billing.Service
)

// SetBillingService wires the billing service the handlers use. Called once
// during startup, before routes are registered.
func SetBillingService(svc *billing.Service) {
	svcMu.Lock()
	defer svcMu.Unlock()
	billingSvc = svc
}

func getBillingService() *billing.Service {
	svcMu.RLock()
	defer svcMu.RUnlock()
	return billingSvc
}

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}
