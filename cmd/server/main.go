package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subbilling/internal/config"
	"subbilling/internal/event"
	"subbilling/internal/handler"
	"subbilling/internal/infrastructure/cache"
	"subbilling/internal/infrastructure/database"
	"subbilling/internal/infrastructure/lock"
	"subbilling/internal/infrastructure/mq"
	"subbilling/internal/job"
	"subbilling/internal/repository"
	"subbilling/internal/service"
	"subbilling/pkg/idgen"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)
	redisClient := cache.InitRedis(&cfg.Redis)

	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	store := repository.NewSQLStore(db)
	locker := lock.NewRedisLocker(
		redisClient,
		time.Duration(cfg.Business.LockExpirationSeconds)*time.Second,
		time.Duration(cfg.Business.LockRetryIntervalMs)*time.Millisecond,
		cfg.Business.LockMaxRetries,
	)

	topic := cfg.Kafka.Topic.BillingEvents
	invoiceExpiry := time.Duration(cfg.Business.InvoiceExpiryMinutes) * time.Minute

	dispatcher := event.NewDispatcher()
	service.RegisterHandlers(
		dispatcher,
		service.NewCheckoutService(store, invoiceExpiry),
		service.NewCaptureService(store, locker, topic),
		service.NewRefundService(store, locker, topic),
		service.NewRestoreService(store, locker, topic),
		store,
		topic,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(store, cfg)
	go outboxSender.Start(ctx)

	sweepJob := job.NewExpirySweepJob(store, service.NewSubscriptionService(store), cfg)
	go sweepJob.Start(ctx)

	router := handler.SetupRouter(store, locker, dispatcher, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	log.Println("server stopped")
}
