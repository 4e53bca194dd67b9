package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nairapay/wallet-service/internal/config"
	"github.com/nairapay/wallet-service/internal/logger"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/nairapay/wallet-service/internal/provider"
	"github.com/nairapay/wallet-service/internal/repo"
	"github.com/nairapay/wallet-service/internal/service"
	httptransport "github.com/nairapay/wallet-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.User{}, &model.Wallet{}, &model.Balance{},
		&model.VirtualAccount{}, &model.Transaction{}, &model.OutboxEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. provider client
	issuer := provider.NewClient(
		cfg.Provider.BaseURL, cfg.Provider.SecretKey,
		cfg.Provider.Timeout(), cfg.Provider.MaxRetries, cfg.Provider.BackoffBase(), log)

	// 7. repo & services
	repository := repo.NewRepository(gdb, rdb, kw, log)
	walletSvc := service.NewWalletService(repository, issuer,
		cfg.Wallet.CurrencyList(), cfg.Wallet.Primary(), cfg.Provider.BVN, log)
	userSvc := service.NewUserService(repository, walletSvc,
		cfg.Provisioning.Slots, cfg.Provisioning.SlotWait(), cfg.Provisioning.TxTimeout(), log)
	ledgerSvc := service.NewLedgerService(repository, log)

	// 8. gin router
	router := httptransport.NewRouter(httptransport.Services{
		Users:  userSvc,
		Wallet: walletSvc,
		Ledger: ledgerSvc,
	}, cfg.RateLimit, log)

	// 9. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("wallet-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
