package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/datahub-africa/datahub_pay/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet", h.Overview)
	r.Get("/wallet/transactions", h.Transactions)
	r.Get("/wallet/stream", h.Stream)
}
