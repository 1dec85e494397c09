package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
	"github.com/heurist-network/reply-bridge/internal/metrics"
)

// MonitorConfig contains polling configuration
type MonitorConfig struct {
	PollInterval time.Duration
	PageDelay    time.Duration
	MaxPages     int
}

// Monitor polls the platform for mentions and enqueues accepted ones
type Monitor struct {
	platformRepo repo.PlatformRepo
	filterUC     *usecase.FilterUsecase
	queueUC      *usecase.QueueUsecase
	cfg          MonitorConfig
	logger       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a new monitor
func NewMonitor(
	platformRepo repo.PlatformRepo,
	filterUC *usecase.FilterUsecase,
	queueUC *usecase.QueueUsecase,
	cfg MonitorConfig,
	logger zerolog.Logger,
) *Monitor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Monitor{
		platformRepo: platformRepo,
		filterUC:     filterUC,
		queueUC:      queueUC,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start runs a poll immediately and then every PollInterval until Stop
func (m *Monitor) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.loop()

	m.logger.Info().Dur("interval", m.cfg.PollInterval).Int("max_pages", m.cfg.MaxPages).Msg("monitor started")
}

// Stop stops the monitor and waits for an in-flight poll
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info().Msg("monitor stopped")
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	m.pollOnce()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

func (m *Monitor) pollOnce() {
	start := time.Now()
	accepted, err := m.Poll(m.ctx)
	if err != nil {
		if m.ctx.Err() == nil {
			m.logger.Error().Err(err).Msg("poll failed")
		}
		return
	}
	m.logger.Info().Int("accepted", len(accepted)).Dur("took", time.Since(start)).Msg("poll finished")
}

// Poll fetches up to MaxPages pages, filters each and enqueues what survives.
// It stops at the first page with accepted items, an empty page, or the last cursor.
// A failed page fetch counts as an empty page.
func (m *Monitor) Poll(ctx context.Context) ([]domain.Candidate, error) {
	platform := m.platformRepo.Name()
	metrics.PollsTotal.WithLabelValues(platform).Inc()

	var accepted []domain.Candidate
	cursor := ""
	for page := 1; page <= m.cfg.MaxPages; page++ {
		if page > 1 {
			if err := sleep(ctx, m.cfg.PageDelay); err != nil {
				return accepted, err
			}
		}

		result, err := m.platformRepo.SearchPage(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return accepted, ctx.Err()
			}
			metrics.PageFetchErrors.WithLabelValues(platform).Inc()
			m.logger.Warn().Err(err).Int("page", page).Msg("page fetch failed, ending poll")
			break
		}
		if len(result.Items) == 0 {
			break
		}
		metrics.CandidatesSeen.WithLabelValues(platform).Add(float64(len(result.Items)))

		kept := m.filterUC.Filter(ctx, result.Items)
		m.logger.Debug().Int("page", page).Int("candidates", len(result.Items)).Int("kept", len(kept)).Msg("page filtered")
		if len(kept) > 0 {
			inserted, err := m.queueUC.Enqueue(ctx, platform, kept)
			if err != nil {
				return accepted, fmt.Errorf("failed to enqueue page %d: %w", page, err)
			}
			accepted = append(accepted, kept...)
			m.logger.Info().Int("page", page).Int("enqueued", inserted).Msg("enqueued new mentions")
			break
		}

		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	return accepted, nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
