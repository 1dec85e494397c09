package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/metrics"
)

// QueueConfig contains claim lease configuration
type QueueConfig struct {
	LeaseTTL    time.Duration
	MaxAttempts int
}

// QueueUsecase is the shared entry point to the work queue
type QueueUsecase struct {
	queueRepo repo.QueueRepo
	cfg       QueueConfig
	now       func() time.Time
}

// NewQueueUsecase creates a new queue usecase
func NewQueueUsecase(queueRepo repo.QueueRepo, cfg QueueConfig) *QueueUsecase {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &QueueUsecase{
		queueRepo: queueRepo,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue persists accepted candidates as pending items and returns how many were new
func (uc *QueueUsecase) Enqueue(ctx context.Context, platform string, candidates []domain.Candidate) (int, error) {
	inserted := 0
	for _, c := range candidates {
		ok, err := uc.queueRepo.Enqueue(ctx, c.ToWorkItem(platform, uc.now()))
		if err != nil {
			return inserted, fmt.Errorf("failed to enqueue %s: %w", c.ID, err)
		}
		if ok {
			inserted++
			metrics.ItemsEnqueued.WithLabelValues(platform).Inc()
		}
	}
	return inserted, nil
}

// Claim takes the next pending item under a lease, nil when idle
func (uc *QueueUsecase) Claim(ctx context.Context) (*domain.WorkItem, error) {
	item, err := uc.queueRepo.ClaimNext(ctx, uc.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim item: %w", err)
	}
	if item != nil {
		metrics.ItemsClaimed.Inc()
	}
	return item, nil
}

// Complete marks a processing item processed
func (uc *QueueUsecase) Complete(ctx context.Context, id string, result domain.CompletionResult) (bool, error) {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = uc.now()
	}
	return uc.queueRepo.Complete(ctx, id, result)
}

// Renew extends the lease of a claimed item for another LeaseTTL.
// False means the claim was lost to the reaper or another worker.
func (uc *QueueUsecase) Renew(ctx context.Context, item *domain.WorkItem) (bool, error) {
	ok, err := uc.queueRepo.RenewLease(ctx, item.ID, item.Attempts, uc.cfg.LeaseTTL)
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", err)
	}
	return ok, nil
}

// RequeueExpired recovers items whose claim lease ran out
func (uc *QueueUsecase) RequeueExpired(ctx context.Context) (requeued, abandoned int, err error) {
	requeued, abandoned, err = uc.queueRepo.RequeueExpired(ctx, uc.now(), uc.cfg.MaxAttempts)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to requeue expired items: %w", err)
	}
	metrics.ReaperRequeued.WithLabelValues("requeued").Add(float64(requeued))
	metrics.ReaperRequeued.WithLabelValues("abandoned").Add(float64(abandoned))
	return requeued, abandoned, nil
}

// Release returns one processing item to pending
func (uc *QueueUsecase) Release(ctx context.Context, id string) (bool, error) {
	return uc.queueRepo.Release(ctx, id)
}

// Summary returns per-state counts
func (uc *QueueUsecase) Summary(ctx context.Context) (*domain.QueueSummary, error) {
	return uc.queueRepo.Summary(ctx)
}

// List returns up to limit items in state
func (uc *QueueUsecase) List(ctx context.Context, state domain.ItemState, limit int) ([]*domain.WorkItem, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("unknown state %q", state)
	}
	return uc.queueRepo.List(ctx, state, limit)
}

// Thread returns the cached thread of rootID
func (uc *QueueUsecase) Thread(ctx context.Context, rootID string) (*domain.ConversationThread, error) {
	return uc.queueRepo.GetThread(ctx, rootID)
}
