package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aistudio-app/backend/api/controllers"
	webhookcontrollers "github.com/aistudio-app/backend/api/controllers/webhooks"
	"github.com/aistudio-app/backend/api/middleware"
	accountsvc "github.com/aistudio-app/backend/internal/accounts"
	gensvc "github.com/aistudio-app/backend/internal/generations"
	"github.com/aistudio-app/backend/internal/purchases"
	"github.com/aistudio-app/backend/internal/reconcile"
	"github.com/aistudio-app/backend/pkg/config"
	"github.com/aistudio-app/backend/pkg/logger"
)

// Deps collects everything the router wires into handlers.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	Pingers map[string]controllers.Pinger

	Accounts    accountsvc.Service
	Generations gensvc.Service
	Purchases   purchases.Service
	Reconciler  reconcile.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	// Worker callbacks and billing notifications authenticate themselves
	// (job id correlation, shared secret) instead of bearer tokens.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookCORS())
		r.Post("/generation", webhookcontrollers.GenerationCallback(deps.Reconciler, logg))
		r.Post("/purchase", webhookcontrollers.PurchaseSettled(deps.Purchases, cfg.Billing, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.CORS())
		r.Post("/sync", controllers.AuthSync(deps.Accounts, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS())
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/account", func(r chi.Router) {
			r.Get("/me", controllers.AccountMe(deps.Accounts, logg))
			r.Get("/transactions", controllers.AccountTransactions(deps.Accounts, logg))
		})

		r.Route("/generations", func(r chi.Router) {
			r.Post("/", controllers.GenerationSubmit(deps.Generations, logg))
			r.Get("/", controllers.GenerationList(deps.Generations, logg))
			r.Get("/{generationID}", controllers.GenerationGet(deps.Generations, logg))
			r.Patch("/{generationID}/favorite", controllers.GenerationFavorite(deps.Generations, logg))
			r.Delete("/{generationID}", controllers.GenerationDelete(deps.Generations, logg))
		})

		r.Get("/packages", controllers.Packages())
	})

	return r
}
