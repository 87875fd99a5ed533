package job

import (
	"context"
	"log"
	"time"

	"subbilling/internal/config"
	"subbilling/internal/infrastructure/mq"
	"subbilling/internal/model"
	"subbilling/internal/repository"
)

// OutboxSender drains PENDING outbox rows to Kafka. Sagas write rows
// inside their transactions; this job publishes them after commit, so a
// rollback never leaks a notification.
type OutboxSender struct {
	store     repository.Store
	cfg       *config.Config
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOutboxSender(store repository.Store, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		store:     store,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		interval:  100 * time.Millisecond,
		batchSize: 100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] context cancelled, exiting")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.store.Outbox().GetPending(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] failed to query pending messages: %v", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := mq.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.store.Outbox().UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.Printf("[OutboxSender] failed to update message status: id=%d err=%v", msg.ID, updateErr)
		} else {
			log.Printf("[OutboxSender] message sent: id=%d topic=%s key=%s", msg.ID, msg.Topic, msg.MessageKey)
		}
		return
	}

	log.Printf("[OutboxSender] send failed: id=%d err=%v", msg.ID, err)

	if err := s.store.Outbox().IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Printf("[OutboxSender] failed to increment retry count: id=%d err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.store.Outbox().MarkAsFailed(ctx, msg.ID); err != nil {
			log.Printf("[OutboxSender] failed to mark message failed: id=%d err=%v", msg.ID, err)
		} else {
			log.Printf("[OutboxSender] message exceeded max retries, marked failed: id=%d", msg.ID)
		}
	}
}
