package vending

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/datahub-africa/datahub_pay/internal/ledger"
)

// Handler exposes vending endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a vending handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type purchaseRequest struct {
	Category     string            `json:"category"`
	Amount       int64             `json:"amount"`
	ProviderCode string            `json:"provider_code"`
	Metadata     map[string]string `json:"metadata"`
}

type purchaseResponse struct {
	EntryID  string            `json:"entry_id"`
	Category string            `json:"category"`
	Amount   int64             `json:"amount"`
	Balance  int64             `json:"balance"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Purchase debits the caller's wallet for a service purchase.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	entry, err := h.service.Purchase(c.UserContext(), PurchaseInput{
		AccountID:    uid,
		Category:     ledger.Category(req.Category),
		Amount:       req.Amount,
		ProviderCode: req.ProviderCode,
		Metadata:     req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusBadRequest, "insufficient balance")
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidCategory),
			errors.Is(err, ErrUnknownProduct), errors.Is(err, ErrWrongCategory):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		case errors.Is(err, ledger.ErrUnavailable), errors.Is(err, ledger.ErrConflict):
			return fiber.NewError(http.StatusServiceUnavailable, "please try again")
		default:
			return fiber.NewError(http.StatusInternalServerError, "purchase failed")
		}
	}

	return c.Status(http.StatusCreated).JSON(purchaseResponse{
		EntryID:  entry.ID,
		Category: string(entry.Category),
		Amount:   entry.Amount,
		Balance:  entry.BalanceAfter,
		Status:   string(entry.Status),
		Metadata: entry.Metadata,
	})
}

type productResponse struct {
	ID           string `json:"id"`
	Category     string `json:"category"`
	Network      string `json:"network,omitempty"`
	DisplayName  string `json:"display_name"`
	Price        int64  `json:"price"`
	ProviderCode string `json:"provider_code"`
}

// Products lists the vendable catalog.
func (h *Handler) Products(c *fiber.Ctx) error {
	products := h.service.Products()
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productResponse{
			ID:           p.ID,
			Category:     string(p.Category),
			Network:      p.Network,
			DisplayName:  p.DisplayName,
			Price:        p.Price,
			ProviderCode: p.ProviderCode,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"products": out})
}
