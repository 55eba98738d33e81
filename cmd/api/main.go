package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/aistudio-app/backend/api/controllers"
	"github.com/aistudio-app/backend/api/routes"
	"github.com/aistudio-app/backend/internal/accounts"
	"github.com/aistudio-app/backend/internal/dispatch"
	"github.com/aistudio-app/backend/internal/generations"
	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/internal/purchases"
	"github.com/aistudio-app/backend/internal/reconcile"
	"github.com/aistudio-app/backend/pkg/config"
	"github.com/aistudio-app/backend/pkg/db"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/aistudio-app/backend/pkg/migrate"
	"github.com/aistudio-app/backend/pkg/pubsub"
	"github.com/aistudio-app/backend/pkg/redis"
	"github.com/aistudio-app/backend/pkg/storage/gcs"
)

const callbackIdempotencyTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap cloud storage", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing cloud storage", err)
		}
	}()

	dispatcher, pubsubClient, err := buildDispatcher(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap job dispatcher", err)
		os.Exit(1)
	}
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
	}

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	accountsRepo := accounts.NewRepository(dbClient.DB())
	generationsRepo := generations.NewRepository(dbClient.DB())
	purchasesRepo := purchases.NewRepository(dbClient.DB())

	accountsService, err := accounts.NewService(accountsRepo, ledgerRepo, dbClient, cfg.Generation.SignupBonus)
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	generationsService, err := generations.NewService(generations.ServiceParams{
		Repo:         generationsRepo,
		LedgerRepo:   ledgerRepo,
		Tx:           dbClient,
		Assets:       gcsClient,
		Dispatcher:   dispatcher,
		Logger:       logg,
		ImagesBucket: gcsClient.ImagesBucket(),
		MaxUploadMB:  cfg.GCS.MaxUploadMB,
		Costs:        cfg.Generation,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create generations service", err)
		os.Exit(1)
	}

	callbackGuard, err := reconcile.NewIdempotencyGuard(redisClient, callbackIdempotencyTTL, "generation-callback")
	if err != nil {
		logg.Error(context.Background(), "failed to create callback idempotency guard", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Repo:         generationsRepo,
		LedgerRepo:   ledgerRepo,
		Tx:           dbClient,
		Results:      gcsClient,
		Guard:        callbackGuard,
		Logger:       logg,
		ImagesBucket: gcsClient.ImagesBucket(),
		VideosBucket: gcsClient.VideosBucket(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	purchasesService, err := purchases.NewService(purchasesRepo, ledgerRepo, dbClient, logg, cfg.Billing.Provider)
	if err != nil {
		logg.Error(context.Background(), "failed to create purchases service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	pingers := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
		"storage":  gcsClient,
	}
	if pubsubClient != nil {
		pingers["pubsub"] = pubsubClient
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			Pingers:     pingers,
			Accounts:    accountsService,
			Generations: generationsService,
			Purchases:   purchasesService,
			Reconciler:  reconciler,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildDispatcher(ctx context.Context, cfg *config.Config, logg *logger.Logger) (dispatch.Dispatcher, *pubsub.Client, error) {
	if cfg.Dispatch.NormalizedMode() == config.DispatchModePubSub {
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, err
		}
		dispatcher, err := dispatch.NewPubSubDispatcher(client.JobsPublisher())
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return dispatcher, client, nil
	}

	dispatcher, err := dispatch.NewHTTPDispatcher(cfg.Dispatch)
	if err != nil {
		return nil, nil, err
	}
	return dispatcher, nil, nil
}
