package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/api"
	"github.com/heurist-network/reply-bridge/internal/biz"
	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
	"github.com/heurist-network/reply-bridge/internal/conf"
	"github.com/heurist-network/reply-bridge/internal/data"
	"github.com/heurist-network/reply-bridge/internal/logger"
	"github.com/heurist-network/reply-bridge/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ReplyServer runs the monitor, reaper, status API and worker pool of one bot account
type ReplyServer struct {
	cfg    *conf.Config
	logger zerolog.Logger

	usecases  *biz.Usecases
	monitor   *service.Monitor
	reaper    *service.Reaper
	pool      *service.WorkerPool
	apiServer *api.Server // nil when API_ADDR is empty
}

// NewUsecases wires the business layer over the repositories
func NewUsecases(cfg *conf.Config, repos *data.Repositories, log zerolog.Logger) *biz.Usecases {
	queueUC := usecase.NewQueueUsecase(repos.Queue, usecase.QueueConfig{
		LeaseTTL:    cfg.Pipeline.LeaseTTL,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})
	filterUC := usecase.NewFilterUsecase(repos.Queue, repos.LLM, cfg.Prompts, usecase.FilterConfig{
		BotIdentity:    cfg.BotIdentity(),
		SearchTerms:    cfg.Filter.SearchTerms,
		IgnoreCriteria: cfg.Filter.IgnoreCriteria,
	}, logger.Component(log, "filter"))
	contextUC := usecase.NewContextBuilderUsecase(repos.Platform, repos.Queue, cfg.Prompts, logger.Component(log, "context"))
	replyUC := usecase.NewReplyUsecase(
		queueUC,
		contextUC,
		repos.Platform,
		repos.LLM,
		repos.Image,
		repos.Mirror,
		cfg.Prompts,
		usecase.ReplyConfig{
			Platform:          cfg.Platform,
			DryRun:            cfg.DryRun,
			Temperature:       cfg.LLM.ReplyTemperature,
			ImageProbability:  cfg.Image.Probability,
			PostRatePerMinute: cfg.Pipeline.PostRatePerMinute,
		},
		logger.Component(log, "reply"),
	)

	return &biz.Usecases{
		Queue:   queueUC,
		Filter:  filterUC,
		Context: contextUC,
		Reply:   replyUC,
	}
}

// NewReplyServer creates a new reply server
func NewReplyServer(cfg *conf.Config, repos *data.Repositories, log zerolog.Logger) *ReplyServer {
	uc := NewUsecases(cfg, repos, log)

	s := &ReplyServer{
		cfg:      cfg,
		logger:   logger.Component(log, "server"),
		usecases: uc,
		monitor: service.NewMonitor(repos.Platform, uc.Filter, uc.Queue, service.MonitorConfig{
			PollInterval: cfg.Pipeline.PollInterval,
			PageDelay:    cfg.Pipeline.PageDelay,
			MaxPages:     cfg.Pipeline.MaxPages,
		}, logger.Component(log, "monitor")),
		reaper: service.NewReaper(uc.Queue, cfg.Pipeline.ReaperInterval, logger.Component(log, "reaper")),
		pool:   service.NewWorkerPool(uc.Queue, uc.Reply, cfg.Pipeline.RateLimitSleep, logger.Component(log, "worker")),
	}
	if cfg.API.Addr != "" {
		s.apiServer = api.NewServer(uc.Queue, cfg.API.Addr, logger.Component(log, "api"))
	}
	return s
}

// Run starts the background components and blocks on the worker pool until ctx is done
func (s *ReplyServer) Run(ctx context.Context) error {
	s.logger.Info().
		Str("platform", s.cfg.Platform).
		Bool("dry_run", s.cfg.DryRun).
		Int("workers", s.cfg.Workers).
		Str("store", s.cfg.Store.Backend).
		Msg("starting reply bridge")

	if s.apiServer != nil {
		go func() {
			if err := s.apiServer.Start(); err != nil {
				s.logger.Error().Err(err).Msg("API server error")
			}
		}()
	}
	s.reaper.Start(ctx)
	s.monitor.Start(ctx)

	err := s.pool.Run(ctx, s.cfg.Workers)

	s.monitor.Stop()
	s.reaper.Stop()
	if s.apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.apiServer.Stop(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("API server shutdown failed")
		}
	}
	s.logger.Info().Msg("reply bridge stopped")
	return err
}
