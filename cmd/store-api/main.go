package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/storefront/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/storefront/internal/coordinator"
	"github.com/jcmexdev/storefront/internal/coordinator/sagalog"
	inventoryapp "github.com/jcmexdev/storefront/internal/inventory-service/app"
	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront/internal/order-service/adapters/rabbitmq"
	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront/internal/payment-service/app"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
	"github.com/jcmexdev/storefront/internal/pkg/config"
	"github.com/jcmexdev/storefront/internal/pkg/database"
	"github.com/jcmexdev/storefront/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel, cfg.ServiceName)
	telemetry.SetPropagator()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("store-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if cfg.TracingEnabled {
		shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerOptions{
			ServiceName: cfg.ServiceName,
			Endpoint:    cfg.OTLPEndpoint,
			Environment: cfg.Environment,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db, models()...); err != nil {
		return err
	}

	var replay cache.Cache
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, checkout replay disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			replay = rc
		}
	}

	var publisher orderdomain.Publisher
	if cfg.AMQPURL != "" {
		conn, ch, err := rabbitmq.SetupConn(ctx, cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()
		publisher = rabbitmq.NewPublisher(ch)
	}

	tx := database.NewTransactor(db, cfg.TxMaxAttempts)
	orders := orderapp.NewService(tx, publisher)
	reconciler := paymentapp.NewReconciler(
		paymentapp.NewRegistry(
			paymentapp.NewCardPay(cfg.CardPay.Secret, cfg.CardPay.CheckoutURL),
			paymentapp.NewWalletPay(cfg.WalletPay.Secret, cfg.WalletPay.CheckoutURL),
		),
		orders,
		cfg.AmountTolerance,
	)

	handler := httpx.NewHandler(httpx.Deps{
		Checkout:     coordinator.NewCheckoutSaga(orders, reconciler, sagalog.NewGormRepository(db)),
		Orders:       orders,
		Availability: inventoryapp.NewChecker(db),
		Ledger:       inventoryapp.NewLedger(tx, inventoryapp.NewMutator()),
		Payments:     reconciler,
		Replay:       replay,
		ReplayTTL:    cfg.IdempotencyTTL,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(handler, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("store-api listening", "addr", cfg.HTTPAddr, "db_driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down store-api")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func models() []any {
	all := append(inventorydomain.Models(), orderdomain.Models()...)
	return append(all, sagalog.Models()...)
}
