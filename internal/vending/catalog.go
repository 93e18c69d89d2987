package vending

import "github.com/datahub-africa/datahub_pay/internal/ledger"

// Product is one vendable item. Price is in kobo; a zero price marks an
// open-amount product (airtime top-ups, electricity tokens).
type Product struct {
	ID           string
	Category     ledger.Category
	Network      string
	DisplayName  string
	Price        int64
	ProviderCode string
}

// Catalog resolves provider codes to products.
type Catalog struct {
	byCode map[string]Product
}

// NewCatalog indexes the given products by provider code.
func NewCatalog(products []Product) *Catalog {
	byCode := make(map[string]Product, len(products))
	for _, p := range products {
		byCode[p.ProviderCode] = p
	}
	return &Catalog{byCode: byCode}
}

// Lookup returns the product for a provider code.
func (c *Catalog) Lookup(code string) (Product, bool) {
	p, ok := c.byCode[code]
	return p, ok
}

// Products lists the catalog contents.
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.byCode))
	for _, p := range c.byCode {
		out = append(out, p)
	}
	return out
}

// DefaultCatalog returns the launch product set.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Product{
		{ID: "1", Category: ledger.CategoryData, Network: "MTN", DisplayName: "MTN 1GB Monthly", Price: 50_000, ProviderCode: "mtn-1gb"},
		{ID: "2", Category: ledger.CategoryData, Network: "MTN", DisplayName: "MTN 2.5GB Monthly", Price: 100_000, ProviderCode: "mtn-2.5gb"},
		{ID: "3", Category: ledger.CategoryAirtime, Network: "Airtel", DisplayName: "Airtel Airtime", Price: 0, ProviderCode: "airtel-vtu"},
		{ID: "4", Category: ledger.CategoryElectricity, DisplayName: "EKEDC Postpaid", Price: 0, ProviderCode: "ekedc"},
		{ID: "5", Category: ledger.CategoryCable, DisplayName: "DSTV Compact", Price: 1_250_000, ProviderCode: "dstv-compact"},
	})
}
