package job

import (
	"context"
	"log"
	"time"

	"subbilling/internal/config"
	"subbilling/internal/repository"
	"subbilling/internal/service"
)

// ExpirySweepJob periodically expires run-out subscriptions, converts
// ended trials into PENDING renewals awaiting payment, and cancels
// PENDING invoices whose payment window has closed.
type ExpirySweepJob struct {
	store     repository.Store
	subs      *service.SubscriptionService
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewExpirySweepJob(store repository.Store, subs *service.SubscriptionService, cfg *config.Config) *ExpirySweepJob {
	interval := time.Duration(cfg.Business.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	batchSize := cfg.Business.SweepBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpirySweepJob{
		store:     store,
		subs:      subs,
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: batchSize,
	}
}

func (j *ExpirySweepJob) Start(ctx context.Context) {
	log.Println("[ExpirySweepJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ExpirySweepJob] context cancelled, exiting")
			return
		case <-j.stopCh:
			log.Println("[ExpirySweepJob] stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *ExpirySweepJob) Stop() {
	close(j.stopCh)
}

// RunOnce executes a single sweep pass.
func (j *ExpirySweepJob) RunOnce(ctx context.Context) {
	expired, err := j.subs.ExpireSubscriptions(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ExpirySweepJob] subscription sweep failed: %v", err)
	} else if len(expired) > 0 {
		log.Printf("[ExpirySweepJob] expired %d subscriptions", len(expired))
	}

	converted, err := j.subs.ExpireTrials(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ExpirySweepJob] trial sweep failed: %v", err)
	} else if len(converted) > 0 {
		log.Printf("[ExpirySweepJob] converted %d ended trials to pending renewals", len(converted))
	}

	cancelled := j.cancelStaleInvoices(ctx)
	if cancelled > 0 {
		log.Printf("[ExpirySweepJob] cancelled %d stale invoices", cancelled)
	}
}

// cancelStaleInvoices closes the payment window on PENDING invoices
// whose expires_at has passed. A capture webhook arriving afterwards
// finds CANCELLED, which is not a capturable state.
func (j *ExpirySweepJob) cancelStaleInvoices(ctx context.Context) int {
	stale, err := j.store.Invoices().FindExpiredPending(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ExpirySweepJob] stale invoice query failed: %v", err)
		return 0
	}

	cancelled := 0
	for _, invoice := range stale {
		if invoice.IsPayable() {
			continue
		}
		invoice.MarkCancelled()
		if err := j.store.Invoices().Save(ctx, invoice); err != nil {
			log.Printf("[ExpirySweepJob] cancel failed: invoice=%s err=%v", invoice.ID, err)
			continue
		}
		cancelled++
	}
	return cancelled
}
