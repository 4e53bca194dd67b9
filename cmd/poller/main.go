package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nairapay/wallet-service/internal/config"
	"github.com/nairapay/wallet-service/internal/logger"
	"github.com/nairapay/wallet-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

const (
	pollInterval = 1 * time.Second
	pollBatch    = 100
)

// Publishes committed wallet/ledger outbox events to Kafka. Events stay in
// event_outbox until both the publish and the processed mark succeed, so a
// crash between the two at worst re-sends an event.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kw.Close()

	r := repo.NewRepository(gdb, rdb, kw, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Infof("outbox poller started, interval=%s batch=%d", pollInterval, pollBatch)
	for {
		select {
		case <-ctx.Done():
			log.Info("outbox poller stopping")
			return
		case <-ticker.C:
			drain(ctx, r, log)
		}
	}
}

func drain(ctx context.Context, r *repo.Repository, log *zap.SugaredLogger) {
	events, err := r.PollOutbox(ctx, pollBatch)
	if err != nil {
		log.Errorf("poll outbox: %v", err)
		return
	}
	for _, evt := range events {
		if err := r.PublishEvent(ctx, evt); err != nil {
			log.Errorf("publish %s id=%d: %v", evt.EventType, evt.ID, err)
			continue
		}
		if err := r.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			log.Errorf("mark processed id=%d: %v", evt.ID, err)
			continue
		}
		log.Infof("%s event for %s %s published", evt.EventType, evt.Aggregate, evt.AggregateID)
	}
}
