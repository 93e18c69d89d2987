package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/datahub-africa/datahub_pay/internal/ledger"
	"github.com/datahub-africa/datahub_pay/internal/paystack"
)

// Handler exposes the wallet funding endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type fundRequest struct {
	Reference string `json:"reference"`
}

type fundResponse struct {
	EntryID   string `json:"entry_id"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
	Status    string `json:"status"`
}

// Fund verifies a Paystack reference and credits the caller's wallet.
// The request body never carries an amount on purpose.
func (h *Handler) Fund(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	entry, err := h.service.Fund(c.UserContext(), uid, req.Reference)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrMissingReference):
			return fiber.NewError(http.StatusBadRequest, "payment reference is required")
		case errors.Is(err, ledger.ErrDuplicateReference):
			return fiber.NewError(http.StatusConflict, "payment already credited")
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		case errors.Is(err, paystack.ErrRejected):
			return fiber.NewError(http.StatusBadRequest, "payment verification failed")
		case errors.Is(err, paystack.ErrUnreachable), errors.Is(err, ledger.ErrUnavailable), errors.Is(err, ledger.ErrConflict):
			return fiber.NewError(http.StatusServiceUnavailable, "please try again")
		default:
			return fiber.NewError(http.StatusInternalServerError, "funding failed")
		}
	}

	return c.Status(http.StatusCreated).JSON(fundResponse{
		EntryID:   entry.ID,
		Reference: entry.ExternalReference,
		Amount:    entry.Amount,
		Balance:   entry.BalanceAfter,
		Status:    string(entry.Status),
	})
}
