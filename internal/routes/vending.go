package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/datahub-africa/datahub_pay/internal/vending"
)

// RegisterVendingRoutes wires bill payment and airtime/data purchase endpoints.
func RegisterVendingRoutes(r fiber.Router, h *vending.Handler) {
	r.Post("/services/purchase", h.Purchase)
}
