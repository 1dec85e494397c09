package data

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/conf"
	"github.com/heurist-network/reply-bridge/internal/infra/heurist"
	"github.com/heurist-network/reply-bridge/internal/infra/imgbb"
	"github.com/heurist-network/reply-bridge/internal/infra/lark"
	"github.com/heurist-network/reply-bridge/internal/infra/neynar"
	"github.com/heurist-network/reply-bridge/internal/infra/twitter"
	"github.com/heurist-network/reply-bridge/internal/logger"
)

// Repositories contains all repositories
type Repositories struct {
	Queue    repo.QueueRepo
	Platform repo.PlatformRepo
	LLM      repo.LLMRepo
	Image    repo.ImageRepo // nil when image generation is disabled
	Mirror   repo.MirrorRepo
}

// Close releases the repositories that hold resources
func (r *Repositories) Close() error {
	if r.Queue != nil {
		return r.Queue.Close()
	}
	return nil
}

// NewQueueRepo opens the configured queue backend
func NewQueueRepo(cfg conf.StoreConfig, log zerolog.Logger) (repo.QueueRepo, error) {
	switch cfg.Backend {
	case conf.StoreSQLite:
		if cfg.ReadOnly {
			return NewReadOnlySQLiteQueueRepo(cfg.Path, log)
		}
		return NewSQLiteQueueRepo(cfg.Path, log)
	case conf.StoreJSON, "":
		if cfg.ReadOnly {
			return NewReadOnlyJSONQueueRepo(cfg.Path, log), nil
		}
		return NewJSONQueueRepo(cfg.Path, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewRepositories creates all repositories from configuration
func NewRepositories(cfg *conf.Config, log zerolog.Logger) (*Repositories, error) {
	queue, err := NewQueueRepo(cfg.Store, logger.Component(log, "store"))
	if err != nil {
		return nil, err
	}

	var platform repo.PlatformRepo
	platformLog := logger.Component(log, cfg.Platform)
	switch cfg.Platform {
	case conf.PlatformTwitter:
		client := twitter.NewClient(twitter.Config{
			SearchAPIKey: cfg.Twitter.SearchAPIKey,
			AccessToken:  cfg.Twitter.AccessToken,
			SearchTerms:  cfg.Filter.SearchTerms,
		})
		platform = NewTwitterRepo(client, cfg.Twitter.BotName, platformLog)
	case conf.PlatformFarcaster:
		client := neynar.NewClient(cfg.Farcaster.APIKey)
		platform = NewFarcasterRepo(client, cfg.Farcaster.FID, cfg.Farcaster.SignerUUID, cfg.Farcaster.Username, platformLog)
	default:
		queue.Close()
		return nil, fmt.Errorf("unknown platform %q", cfg.Platform)
	}

	llmClient := heurist.NewLLMClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.LargeModel, cfg.LLM.SmallModel)

	var image repo.ImageRepo
	if cfg.Image.Probability > 0 {
		image = NewImageRepo(
			heurist.NewImageClient(cfg.Image.SequencerURL, cfg.LLM.APIKey, cfg.Image.Model),
			imgbb.NewClient(cfg.Image.ImgbbAPIKey),
			logger.Component(log, "image"),
		)
	}

	mirror := NewNopMirror()
	if cfg.Lark.Enabled() {
		mirror = NewLarkMirror(lark.NewClient(cfg.Lark.AppID, cfg.Lark.AppSecret), cfg.Lark.ChatID)
	}

	return &Repositories{
		Queue:    queue,
		Platform: platform,
		LLM:      NewLLMRepo(llmClient, logger.Component(log, "llm")),
		Image:    image,
		Mirror:   mirror,
	}, nil
}
