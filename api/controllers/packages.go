package controllers

import (
	"net/http"

	"github.com/aistudio-app/backend/api/responses"
	"github.com/aistudio-app/backend/internal/purchases"
)

type packageResponse struct {
	ID       string `json:"id"`
	Tokens   int    `json:"tokens"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

// Packages lists the purchasable token packages.
func Packages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog := purchases.Catalog()
		items := make([]packageResponse, len(catalog))
		for i, pkg := range catalog {
			items[i] = packageResponse{
				ID:       pkg.ID,
				Tokens:   pkg.Tokens,
				Price:    pkg.Price.StringFixed(2),
				Currency: pkg.Currency,
			}
		}
		responses.WriteSuccess(w, map[string]any{"packages": items})
	}
}
