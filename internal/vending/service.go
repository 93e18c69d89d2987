package vending

import (
	"context"
	"errors"
	"fmt"

	"github.com/datahub-africa/datahub_pay/internal/ledger"
	"github.com/datahub-africa/datahub_pay/internal/notification"
)

var (
	// ErrUnknownProduct indicates the provider code is not in the catalog.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrWrongCategory indicates the requested category does not match the
	// product's category.
	ErrWrongCategory = errors.New("product category mismatch")
)

// Service debits wallets for airtime, data and bill purchases. All balance
// arithmetic goes through the ledger engine; this layer only resolves the
// product and shapes the metadata.
type Service struct {
	engine   *ledger.Engine
	catalog  *Catalog
	notifier notification.Notifier
}

// NewService builds a vending service. A nil catalog selects the default one.
func NewService(engine *ledger.Engine, catalog *Catalog, notifier notification.Notifier) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{engine: engine, catalog: catalog, notifier: notifier}
}

// PurchaseInput captures one vending request. Metadata carries descriptive
// fields only (phone number, meter number, smartcard) and never influences
// the amount.
type PurchaseInput struct {
	AccountID    string
	Category     ledger.Category
	Amount       int64
	ProviderCode string
	Metadata     map[string]string
}

// Purchase resolves the product, fixes the amount for fixed-price products,
// and debits the wallet.
func (s *Service) Purchase(ctx context.Context, input PurchaseInput) (ledger.Entry, error) {
	amount := input.Amount

	metadata := make(map[string]string, len(input.Metadata)+3)
	for k, v := range input.Metadata {
		metadata[k] = v
	}

	if input.ProviderCode != "" {
		product, ok := s.catalog.Lookup(input.ProviderCode)
		if !ok {
			return ledger.Entry{}, ErrUnknownProduct
		}
		if input.Category != "" && input.Category != product.Category {
			return ledger.Entry{}, ErrWrongCategory
		}
		input.Category = product.Category
		// Fixed-price products always debit their catalog price.
		if product.Price > 0 {
			amount = product.Price
		}
		metadata["provider_code"] = product.ProviderCode
		metadata["product"] = product.DisplayName
		if product.Network != "" {
			metadata["network"] = product.Network
		}
	}

	entry, err := s.engine.Debit(ctx, input.AccountID, input.Category, amount, metadata)
	if err != nil {
		return ledger.Entry{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPurchase,
			Destination: input.AccountID,
			Body:        fmt.Sprintf("%s purchase of %d kobo completed", input.Category, entry.Amount),
		})
	}

	return entry, nil
}

// Products exposes the catalog for listing endpoints.
func (s *Service) Products() []Product {
	return s.catalog.Products()
}
