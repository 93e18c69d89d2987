package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/datahub-africa/datahub_pay/internal/funding"
)

// RegisterFundingRoutes wires the wallet funding endpoint.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/wallet/fund", h.Fund)
}
