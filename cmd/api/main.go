package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/app"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/clock"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/config"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/metrics"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/nft"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/notify"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/storage/postgres"
	transporthttp "github.com/shubhamsingh32112/worldtile-backend-sub001/internal/transport/http"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		log.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}

	clk := clock.NewSystem()

	unitRepo := postgres.NewUnitRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	deedRepo := postgres.NewDeedRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	publisher := notify.NewPublisher(cfg.RabbitMQURL, cfg.NotifyExchange, cfg.NotifyTopic)
	defer publisher.Close()

	ledgerSvc := app.NewLedgerService(unitRepo, clk)
	userSvc := app.NewUserService(userRepo, clk)
	orderSvc := app.NewOrderService(orderRepo, userSvc, ledgerSvc, clk,
		app.WithOrderTTL(cfg.OrderTTL))
	deedSvc := app.NewDeedService(deedRepo, orderRepo, ledgerSvc, userSvc, publisher, clk,
		app.WithNFTContract(cfg.NFTContractAddress, cfg.NFTChain, cfg.NFTStandard))
	reconcileSvc := app.NewReconcileService(orderRepo, ledgerSvc, deedSvc, clk,
		app.WithRequiredConfirmations(cfg.RequiredConfirmations))

	minter := nft.NewClient(cfg.MintServiceURL, cfg.MintServiceAPIKey, cfg.MintServiceTimeout)
	mintSvc := app.NewMintService(deedRepo, userSvc, minter,
		app.WithMintContract(cfg.NFTContractAddress, cfg.NFTChain, cfg.NFTStandard))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/payments/observations", transporthttp.HandlePaymentObservation(reconcileSvc))
	mux.Handle("/orders", transporthttp.HandleCreateOrder(orderSvc))
	mux.Handle("/orders/", transporthttp.HandleGetOrder(orderSvc, orderSvc))
	mux.Handle("/units", transporthttp.HandleListUnits(ledgerSvc))
	mux.Handle("/deeds/", transporthttp.HandleGetDeed(deedSvc))
	mux.Handle("/users", transporthttp.HandleRegisterUser(userSvc))
	mux.Handle("/users/", transporthttp.HandleGetUser(userSvc, userSvc))
	mux.Handle("/admin/units", transporthttp.HandleAdminImportUnits(ledgerSvc))
	mux.Handle("/admin/orders/", transporthttp.HandleAdminPromoteOrder(reconcileSvc))
	mux.Handle("/admin/mints/retry", transporthttp.HandleAdminRetryMints(mintSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	corsOrigins := config.ParseCSV(cfg.CORSOrigins)
	handler := transporthttp.RequestLogger(
		metrics.Middleware(transporthttp.CORS(corsOrigins, mux)),
		log.Logger,
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runExpirySweep(sweepCtx, reconcileSvc, cfg.SweepInterval, cfg.SweepBatchSize)

	log.Info().Str("port", cfg.Port).Str("app", cfg.AppName).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	case <-stopCtx.Done():
		log.Info().Msg("shutdown signal received, stopping server")
	}

	stopSweep()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
}

// runExpirySweep periodically expires overdue pending orders and releases
// their units back to inventory.
func runExpirySweep(ctx context.Context, svc *app.ReconcileService, interval time.Duration, batchSize int) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := svc.ExpireDue(ctx, batchSize)
			if err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if expired > 0 {
				log.Info().Int("expired", expired).Msg("expiry sweep")
			}
		}
	}
}
