package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/soldihq/soldi/internal/config"
	"github.com/soldihq/soldi/internal/core/application"
	"github.com/soldihq/soldi/internal/core/ports"
	solanachain "github.com/soldihq/soldi/internal/infrastructure/chain/solana"
	"github.com/soldihq/soldi/internal/infrastructure/db"
	"github.com/soldihq/soldi/internal/infrastructure/events"
	redisevents "github.com/soldihq/soldi/internal/infrastructure/events/redis"
	scheduler "github.com/soldihq/soldi/internal/infrastructure/scheduler/gocron"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	log.Infof("starting soldi %s (%s, built %s)...", version, commit, date)

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: []any{cfg.Datadir, nil},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}
	defer dbSvc.Close()

	chainSvc, err := solanachain.NewService(cfg.RpcURL, cfg.FeePayer(), cfg.ReadCommitment())
	if err != nil {
		log.WithError(err).Fatal("failed to init chain service")
	}

	var publisher ports.EventPublisher
	if cfg.RedisURL != "" {
		publisher, err = redisevents.NewPublisher(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
	} else {
		publisher = events.NewNoopPublisher()
	}
	defer publisher.Close()

	cypher, err := application.NewSecretCypher(cfg.EncryptWalletSecrets, cfg.WalletEncryptionKey)
	if err != nil {
		log.WithError(err).Fatal("failed to init wallet secret cypher")
	}

	walletSvc := application.NewWalletService(
		dbSvc, chainSvc, cypher, int(cfg.TokenAccountBatchSize),
	)
	sweepSvc := application.NewSweepService(dbSvc, chainSvc, walletSvc)
	verifySvc := application.NewVerifyService(
		dbSvc, chainSvc, sweepSvc, publisher, cfg.Receiver(), cfg.AcceptanceCommitment(),
	)
	paymentSvc := application.NewPaymentService(
		dbSvc, chainSvc, walletSvc, sweepSvc, verifySvc, cfg.Receiver(), cfg.PaymentValidity(),
	)

	ctx := context.Background()
	delay := cfg.RateLimitDelay()

	schedulerSvc := scheduler.NewScheduler()
	jobs := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{
			"expire-payments",
			time.Duration(cfg.ExpireJobIntervalSeconds) * time.Second,
			func() {
				if _, err := paymentSvc.ExpirePayments(ctx); err != nil {
					log.WithError(err).Error("failed to expire payments")
				}
			},
		},
		{
			"sweep-settled-wallets",
			time.Duration(cfg.SweepJobIntervalSeconds) * time.Second,
			func() {
				if err := paymentSvc.SweepSettledWallets(ctx, delay); err != nil {
					log.WithError(err).Error("failed to sweep settled wallets")
				}
			},
		},
		{
			"recheck-initiated-payments",
			time.Duration(cfg.RecheckJobIntervalSeconds) * time.Second,
			func() {
				if _, err := paymentSvc.RecheckInitiatedPayments(
					ctx, int(cfg.RecheckLimit), delay,
				); err != nil {
					log.WithError(err).Error("failed to recheck payments")
				}
			},
		},
		{
			"close-expired-wallets",
			time.Duration(cfg.CloseJobIntervalSeconds) * time.Second,
			func() {
				if err := walletSvc.CloseExpiredWallets(ctx, delay); err != nil {
					log.WithError(err).Error("failed to close expired wallets")
				}
			},
		},
	}
	for _, job := range jobs {
		if err := schedulerSvc.ScheduleJob(job.name, job.interval, job.run); err != nil {
			log.WithError(err).Fatalf("failed to schedule job %s", job.name)
		}
	}

	log.RegisterExitHandler(schedulerSvc.Stop)

	log.Info("starting scheduler...")
	schedulerSvc.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}
