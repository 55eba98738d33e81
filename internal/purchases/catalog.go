package purchases

import "github.com/shopspring/decimal"

// Package is one purchasable token bundle. IDs match the store-front product
// identifiers so the billing webhook can reference them directly.
type Package struct {
	ID       string          `json:"id"`
	Tokens   int             `json:"tokens"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

var catalog = []Package{
	{ID: "tokens_100", Tokens: 100, Price: decimal.NewFromFloat(4.99), Currency: "USD"},
	{ID: "tokens_500", Tokens: 500, Price: decimal.NewFromFloat(19.99), Currency: "USD"},
	{ID: "tokens_1000", Tokens: 1000, Price: decimal.NewFromFloat(34.99), Currency: "USD"},
	{ID: "tokens_5000", Tokens: 5000, Price: decimal.NewFromFloat(149.99), Currency: "USD"},
}

// Catalog returns the purchasable packages in display order.
func Catalog() []Package {
	out := make([]Package, len(catalog))
	copy(out, catalog)
	return out
}

// PackageByID looks up a package by its product identifier.
func PackageByID(id string) (Package, bool) {
	for _, pkg := range catalog {
		if pkg.ID == id {
			return pkg, true
		}
	}
	return Package{}, false
}
