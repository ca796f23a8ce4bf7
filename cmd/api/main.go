package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"sathunt/config"
	"sathunt/internal/auth"
	"sathunt/internal/balance"
	"sathunt/internal/card"
	"sathunt/internal/claim"
	"sathunt/internal/donation"
	"sathunt/internal/httpserver"
	"sathunt/internal/ledger"
	"sathunt/internal/lnd"
	"sathunt/internal/lnurl"
	"sathunt/internal/wallet"
	"sathunt/pkg/cache"
	"sathunt/pkg/logger"
	"sathunt/pkg/queue"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

var Cfg config.AppConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	configPath := config.Path(root).Join("config.toml")

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	var dbCfg ledger.Config
	if err := copier.Copy(&dbCfg, &Cfg.Database); err != nil {
		return fmt.Errorf("failed to copy database config: %w", err)
	}
	db, err := ledger.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var lndCfg lnd.Config
	if err := copier.Copy(&lndCfg, &Cfg.LND); err != nil {
		return fmt.Errorf("failed to copy lnd config: %w", err)
	}
	lndClient, err := lnd.NewClient(lndCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to lnd: %w", err)
	}
	defer lndClient.Close()

	// Repositories
	users := ledger.NewUserRepository(db)
	settings := ledger.NewSettingsRepository(db)
	locations := ledger.NewLocationRepository(db)
	cards := ledger.NewCardRepository(db)
	claims := ledger.NewClaimRepository(db)
	donations := ledger.NewDonationRepository(db)
	walletRepo := ledger.NewWalletRepository(db)

	// Services
	balanceCfg := balance.Config{
		TimeToFullDays:    Cfg.Treasure.TimeToFullDays,
		MaxFillPercentage: Cfg.Treasure.MaxFillPercentage,
	}
	authSvc := auth.NewService(users, settings)
	cardSvc := card.NewService(locations, cards)
	claimEngine := claim.NewEngine(cards, locations, claims, donations, balanceCfg)
	lnurlClient := lnurl.NewClient(nil)
	walletEngine := wallet.NewEngine(walletRepo, lndClient, lnurlClient)

	donationQueue := queue.NewStreamQueue(cache.Client)
	donationSvc := donation.NewService(donations, lndClient, donationQueue, Cfg.Donation.StreamName, Cfg.Donation.ConsumerGroup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := donationQueue.DeclareStream(ctx, Cfg.Donation.StreamName, Cfg.Donation.ConsumerGroup); err != nil {
		logger.Warn("failed to declare donation consumer group, continuing without durable queue", zap.Error(err))
	}
	go donationSvc.Start(ctx)

	cookieSecret, err := authSvc.CookieSecret(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cookie secret: %w", err)
	}

	server := httpserver.New(
		httpserver.Config{
			Addr:          Cfg.Server.Host + ":" + Cfg.Server.Port,
			PublicBaseURL: Cfg.Treasure.PublicBaseURL,
		},
		cookieSecret,
		claimEngine,
		walletEngine,
		donationSvc,
		cardSvc,
		authSvc,
		locations,
		lndClient,
	)

	go func() {
		logger.Info("sathunt api listening", zap.String("addr", Cfg.Server.Host+":"+Cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	return nil
}
