package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/conf"
	"github.com/heurist-network/reply-bridge/internal/metrics"
)

const (
	defaultReplyTemperature = 0.4
	imagePromptTemperature  = 0.7
	imagePromptTokens       = 200
)

// ErrLeaseLost is returned when a claim expired before its reply was posted.
// The item belongs to whoever claimed it next, so nothing is posted.
var ErrLeaseLost = errors.New("lease lost before post")

// ReplyConfig contains reply generation configuration
type ReplyConfig struct {
	Platform          string
	DryRun            bool
	Temperature       float32 // reply temperature, 0.4 when unset
	ImageProbability  float64 // chance in [0,1] of attaching a generated image
	PostRatePerMinute int     // 0 disables the post limiter
}

// ReplyResult describes one processed item
type ReplyResult struct {
	Prompt   string
	Thread   []domain.ThreadEntry // nil for single-message prompts
	Response string
	ImageURL string
	ReplyID  string
}

// ReplyUsecase turns one claimed work item into a posted reply
type ReplyUsecase struct {
	queueUC      *QueueUsecase
	contextUC    *ContextBuilderUsecase
	platformRepo repo.PlatformRepo
	llmRepo      repo.LLMRepo
	imageRepo    repo.ImageRepo
	mirrorRepo   repo.MirrorRepo
	prompts      *conf.PromptsConfig
	cfg          ReplyConfig
	limiter      *rate.Limiter
	logger       zerolog.Logger

	random func() float64
}

// NewReplyUsecase creates a new reply usecase. imageRepo and mirrorRepo may be nil.
func NewReplyUsecase(
	queueUC *QueueUsecase,
	contextUC *ContextBuilderUsecase,
	platformRepo repo.PlatformRepo,
	llmRepo repo.LLMRepo,
	imageRepo repo.ImageRepo,
	mirrorRepo repo.MirrorRepo,
	prompts *conf.PromptsConfig,
	cfg ReplyConfig,
	logger zerolog.Logger,
) *ReplyUsecase {
	if prompts == nil {
		prompts = conf.DefaultPromptsConfig()
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultReplyTemperature
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.PostRatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PostRatePerMinute)), 1)
	}

	return &ReplyUsecase{
		queueUC:      queueUC,
		contextUC:    contextUC,
		platformRepo: platformRepo,
		llmRepo:      llmRepo,
		imageRepo:    imageRepo,
		mirrorRepo:   mirrorRepo,
		prompts:      prompts,
		cfg:          cfg,
		limiter:      limiter,
		logger:       logger,
		random:       rand.Float64,
	}
}

// SetRandom replaces the source used for the image coin flip
func (uc *ReplyUsecase) SetRandom(fn func() float64) {
	uc.random = fn
}

// Process generates, posts and completes one claimed item.
// On error the item stays processing until its lease expires.
func (uc *ReplyUsecase) Process(ctx context.Context, item *domain.WorkItem) (*ReplyResult, error) {
	log := uc.logger.With().Str("id", item.ID).Str("author", item.Author).Logger()

	uc.loadRelated(ctx, item)

	result := &ReplyResult{}
	if item.HasParent() {
		result.Thread = uc.contextUC.BuildThread(ctx, item)
		result.Prompt = uc.contextUC.FormatThreadPrompt(result.Thread, item.AsThreadEntry())
		log.Debug().Int("thread_len", len(result.Thread)).Msg("built conversation thread")
	} else {
		result.Prompt = uc.prompts.FormatSocialReply(item.Author, uc.cfg.Platform, item.Content, item.RelatedContent)
	}

	reply, err := uc.llmRepo.Complete(ctx, repo.CompletionRequest{
		System:      uc.prompts.Reply.SystemPrompt,
		User:        result.Prompt,
		Temperature: uc.cfg.Temperature,
	})
	if err != nil {
		metrics.RepliesTotal.WithLabelValues("llm_error").Inc()
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}
	if reply == "" {
		metrics.RepliesTotal.WithLabelValues("llm_error").Inc()
		return nil, fmt.Errorf("failed to generate reply: empty completion")
	}
	result.Response = reply

	if uc.imageRepo != nil && uc.cfg.ImageProbability > 0 && uc.random() < uc.cfg.ImageProbability {
		result.ImageURL = uc.generateImage(ctx, item, reply)
	}

	if uc.cfg.DryRun {
		log.Info().Str("reply", reply).Str("image_url", result.ImageURL).Msg("dry run, not posting reply")
		metrics.RepliesTotal.WithLabelValues("dry_run").Inc()
	} else {
		posted, err := uc.post(ctx, item, result)
		if errors.Is(err, ErrLeaseLost) {
			metrics.RepliesTotal.WithLabelValues("lease_lost").Inc()
			return nil, err
		}
		if err != nil {
			metrics.RepliesTotal.WithLabelValues("post_error").Inc()
			return nil, err
		}
		result.ReplyID = posted.ID
		metrics.RepliesTotal.WithLabelValues("sent").Inc()

		if uc.mirrorRepo != nil {
			if err := uc.mirrorRepo.Mirror(ctx, item, posted, reply); err != nil {
				log.Warn().Err(err).Msg("failed to mirror reply")
			}
		}
	}

	ok, err := uc.queueUC.Complete(ctx, item.ID, domain.CompletionResult{
		Response: result.Response,
		ImageURL: result.ImageURL,
		ReplyID:  result.ReplyID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete item: %w", err)
	}
	if !ok {
		log.Warn().Msg("item was no longer processing when completed")
	}

	log.Info().Str("reply_id", result.ReplyID).Msg("reply processed")
	return result, nil
}

func (uc *ReplyUsecase) post(ctx context.Context, item *domain.WorkItem, result *ReplyResult) (*domain.PostResult, error) {
	if err := uc.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for post slot: %w", err)
	}
	ok, err := uc.queueUC.Renew(ctx, item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseLost
	}
	posted, err := uc.platformRepo.Post(ctx, domain.Post{
		Text:      result.Response,
		ReplyToID: item.ID,
		MediaURL:  result.ImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to post reply: %w", err)
	}
	return posted, nil
}

// loadRelated fills RelatedContent from RelatedID; failures are ignored
func (uc *ReplyUsecase) loadRelated(ctx context.Context, item *domain.WorkItem) {
	if item.RelatedID == "" || item.RelatedContent != "" {
		return
	}
	entry, err := uc.platformRepo.GetItem(ctx, item.RelatedID)
	if err != nil {
		uc.logger.Warn().Err(err).Str("id", item.ID).Str("related_id", item.RelatedID).Msg("failed to load related item")
		return
	}
	item.RelatedContent = entry.Text
}

// generateImage returns a hosted image url, or "" on any failure
func (uc *ReplyUsecase) generateImage(ctx context.Context, item *domain.WorkItem, reply string) string {
	log := uc.logger.With().Str("id", item.ID).Logger()

	prompt, err := uc.llmRepo.Complete(ctx, repo.CompletionRequest{
		System:      uc.prompts.Image.SystemPrompt,
		User:        uc.prompts.FormatImagePrompt(item.Content, reply),
		Temperature: imagePromptTemperature,
		MaxTokens:   imagePromptTokens,
		Small:       true,
	})
	if err != nil || prompt == "" {
		log.Warn().Err(err).Msg("failed to write image prompt, replying without image")
		metrics.ImagesTotal.WithLabelValues("prompt_error").Inc()
		return ""
	}

	generated, err := uc.imageRepo.Generate(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("image generation failed, replying without image")
		metrics.ImagesTotal.WithLabelValues("generate_error").Inc()
		return ""
	}

	hosted, err := uc.imageRepo.Host(ctx, generated)
	if err != nil {
		log.Warn().Err(err).Msg("image upload failed, replying without image")
		metrics.ImagesTotal.WithLabelValues("host_error").Inc()
		return ""
	}

	metrics.ImagesTotal.WithLabelValues("ok").Inc()
	return hosted
}
