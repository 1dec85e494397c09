package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
)

// Reaper returns items with expired claim leases to the queue
type Reaper struct {
	queueUC  *usecase.QueueUsecase
	interval time.Duration
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a new lease reaper
func NewReaper(queueUC *usecase.QueueUsecase, interval time.Duration, logger zerolog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		queueUC:  queueUC,
		interval: interval,
		logger:   logger,
	}
}

// Start sweeps once, then every interval until Stop
func (r *Reaper) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop()

	r.logger.Info().Dur("interval", r.interval).Msg("reaper started")
}

// Stop stops the reaper
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info().Msg("reaper stopped")
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	r.Sweep(r.ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.ctx)
		}
	}
}

// Sweep runs one requeue pass
func (r *Reaper) Sweep(ctx context.Context) {
	requeued, abandoned, err := r.queueUC.RequeueExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("lease sweep failed")
		}
		return
	}
	if requeued > 0 || abandoned > 0 {
		r.logger.Warn().Int("requeued", requeued).Int("abandoned", abandoned).Msg("recovered expired claims")
	}
}
