package wallet

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/datahub-africa/datahub_pay/internal/ledger"
	"github.com/datahub-africa/datahub_pay/internal/projection"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	streamKeepAlive     = 25 * time.Second
)

// Handler serves wallet overview, transaction history and the live balance
// stream for the authenticated user.
type Handler struct {
	store ledger.Store
	feed  *projection.Feed
}

// NewHandler constructs a wallet handler.
func NewHandler(store ledger.Store, feed *projection.Feed) *Handler {
	return &Handler{store: store, feed: feed}
}

type destinationView struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type overviewResponse struct {
	AccountID          string          `json:"account_id"`
	Balance            int64           `json:"balance"`
	FundingDestination destinationView `json:"funding_destination"`
}

type entryView struct {
	ID            string            `json:"id"`
	Direction     string            `json:"direction"`
	Category      string            `json:"category"`
	Amount        int64             `json:"amount"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Status        string            `json:"status"`
	Reference     string            `json:"reference,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func toEntryView(e ledger.Entry) entryView {
	return entryView{
		ID:            e.ID,
		Direction:     string(e.Direction),
		Category:      string(e.Category),
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Status:        string(e.Status),
		Reference:     e.ExternalReference,
		Metadata:      e.Metadata,
		CreatedAt:     e.CreatedAt,
	}
}

// Overview returns the balance and the bank details used to fund the wallet.
func (h *Handler) Overview(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	account, err := h.store.Account(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusServiceUnavailable, "please try again")
	}
	return c.Status(http.StatusOK).JSON(overviewResponse{
		AccountID: account.ID,
		Balance:   account.Balance,
		FundingDestination: destinationView{
			BankName:      account.FundingDestination.BankName,
			AccountNumber: account.FundingDestination.AccountNumber,
			AccountName:   account.FundingDestination.AccountName,
		},
	})
}

// Transactions lists the user's ledger entries, most recent first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return fiber.NewError(http.StatusBadRequest, "limit must be a positive integer")
		}
		if parsed < maxHistoryLimit {
			limit = parsed
		} else {
			limit = maxHistoryLimit
		}
	}

	entries, err := h.store.Entries(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusServiceUnavailable, "please try again")
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toEntryView(e))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": views})
}

type streamEvent struct {
	AccountID string      `json:"account_id"`
	Balance   int64       `json:"balance"`
	Entries   []entryView `json:"entries"`
	AsOf      time.Time   `json:"as_of"`
}

// Stream pushes balance snapshots over server-sent events whenever the
// ledger commits a change for the user's account.
func (h *Handler) Stream(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	feed := h.feed
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		updates := make(chan projection.Snapshot, 4)
		sub := feed.Subscribe(uid, func(snapshot projection.Snapshot) {
			// Drop the oldest buffered snapshot if the client reads slowly;
			// the next commit re-delivers current state anyway.
			select {
			case updates <- snapshot:
			default:
				select {
				case <-updates:
				default:
				}
				select {
				case updates <- snapshot:
				default:
				}
			}
		})
		defer sub.Cancel()

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case snapshot := <-updates:
				views := make([]entryView, 0, len(snapshot.Entries))
				for _, e := range snapshot.Entries {
					views = append(views, toEntryView(e))
				}
				payload, err := json.Marshal(streamEvent{
					AccountID: snapshot.AccountID,
					Balance:   snapshot.Balance,
					Entries:   views,
					AsOf:      snapshot.AsOf,
				})
				if err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "event: balance\ndata: %s\n\n", payload); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}
