package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"sathunt/config"
	"sathunt/internal/donation"
	"sathunt/internal/ledger"
	"sathunt/internal/lnd"
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

// run hosts the durable half of the donation watcher (C6): it replays
// pending donations from the ledger at startup, same as the API process
// does, and additionally drains the Redis stream of new-donation
// notifications so a donation created while this process — or the API's
// own in-process watcher — was down still gets its waiter spawned.
func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
	configPath := config.Path(root).Join("config.toml")

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("starting donation_sweeper worker...")

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

	var lndCfg lnd.Config
	if err := copier.Copy(&lndCfg, &Cfg.LND); err != nil {
		return fmt.Errorf("failed to copy lnd config: %w", err)
	}
	lndClient, err := lnd.NewClient(lndCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to lnd: %w", err)
	}
	defer lndClient.Close()

	donations := ledger.NewDonationRepository(db)
	donationQueue := queue.NewStreamQueue(cache.Client)
	stream := Cfg.Donation.StreamName
	group := Cfg.Donation.ConsumerGroup
	consumerName := fmt.Sprintf("donation-sweeper-%d", os.Getpid())

	svc := donation.NewService(donations, lndClient, donationQueue, stream, group)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := donationQueue.DeclareStream(ctx, stream, group); err != nil {
		return fmt.Errorf("failed to declare the consumer group: %w", err)
	}

	go svc.Start(ctx)

	go func() {
		err := donationQueue.Consume(ctx, stream, group, consumerName,
			func(messageID string, data []byte) error {
				var msg donation.NewDonation
				if err := json.Unmarshal(data, &msg); err != nil {
					return fmt.Errorf("invalid donation notification: %w", err)
				}
				svc.Handle(ctx, msg)
				return nil
			})
		if err != nil && err != context.Canceled {
			logger.Error("donation stream consumer error", zap.Error(err))
		}
	}()

	logger.Info("donation sweeper running",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("consumer", consumerName))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(3 * time.Second)
	logger.Info("donation sweeper shut down gracefully")

	return nil
}
