package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
)

// WorkerPool drains the queue with independent self-paced workers
type WorkerPool struct {
	queueUC *usecase.QueueUsecase
	replyUC *usecase.ReplyUsecase
	pause   time.Duration // RATE_LIMIT_SLEEP, after every item and when idle
	logger  zerolog.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queueUC *usecase.QueueUsecase, replyUC *usecase.ReplyUsecase, pause time.Duration, logger zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		queueUC: queueUC,
		replyUC: replyUC,
		pause:   pause,
		logger:  logger,
	}
}

// Run starts n workers and blocks until ctx is cancelled
func (p *WorkerPool) Run(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		log := p.logger.With().Int("worker", i).Logger()
		g.Go(func() error {
			p.loop(gctx, log)
			return nil
		})
	}

	p.logger.Info().Int("workers", n).Dur("pause", p.pause).Msg("worker pool started")
	err := g.Wait()
	p.logger.Info().Msg("worker pool stopped")
	return err
}

func (p *WorkerPool) loop(ctx context.Context, log zerolog.Logger) {
	for ctx.Err() == nil {
		p.RunOnce(ctx, log)
		if err := sleep(ctx, p.pause); err != nil {
			return
		}
	}
}

// RunOnce claims and processes at most one item, reporting whether one was claimed.
// Item failures are logged and never returned.
func (p *WorkerPool) RunOnce(ctx context.Context, log zerolog.Logger) bool {
	item, err := p.queueUC.Claim(ctx)
	if err != nil {
		log.Error().Err(err).Msg("claim failed")
		return false
	}
	if item == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("id", item.ID).Msg("reply panicked, item left for the reaper")
		}
	}()

	if _, err := p.replyUC.Process(ctx, item); err != nil {
		log.Error().Err(err).Str("id", item.ID).Msg("reply failed, item left for the reaper")
	}
	return true
}
