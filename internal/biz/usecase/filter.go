package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/conf"
	"github.com/heurist-network/reply-bridge/internal/metrics"
)

// Rejection rules, in evaluation order
const (
	RuleSelfAuthor     = "self_author"
	RuleSelfOriginated = "self_originated"
	RuleKnown          = "known"
	RuleNoTrigger      = "no_trigger"
	RuleDeepReply      = "deep_reply"
	RuleTooShort       = "too_short"
	RuleClassifier     = "classifier"
)

const (
	maxLeadingMentions = 3
	minStrippedLength  = 10
	classifierTokens   = 100
)

var jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// FilterConfig contains mention filter configuration
type FilterConfig struct {
	BotIdentity    string   // handle or display name of the bot account
	SearchTerms    []string // empty means every candidate carries a trigger
	IgnoreCriteria string   // empty disables the classifier
}

// FilterUsecase decides which candidates become work items
type FilterUsecase struct {
	queueRepo repo.QueueRepo
	llmRepo   repo.LLMRepo
	prompts   *conf.PromptsConfig
	cfg       FilterConfig
	logger    zerolog.Logger
}

// NewFilterUsecase creates a new filter usecase
func NewFilterUsecase(
	queueRepo repo.QueueRepo,
	llmRepo repo.LLMRepo,
	prompts *conf.PromptsConfig,
	cfg FilterConfig,
	logger zerolog.Logger,
) *FilterUsecase {
	if prompts == nil {
		prompts = conf.DefaultPromptsConfig()
	}
	return &FilterUsecase{
		queueRepo: queueRepo,
		llmRepo:   llmRepo,
		prompts:   prompts,
		cfg:       cfg,
		logger:    logger,
	}
}

// Filter returns the candidates that pass every rule, in input order
func (uc *FilterUsecase) Filter(ctx context.Context, candidates []domain.Candidate) []domain.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	known, err := uc.queueRepo.KnownIDs(ctx)
	if err != nil {
		uc.logger.Error().Err(err).Msg("failed to load known ids, continuing with empty set")
		known = map[string]struct{}{}
	}

	seen := make(map[string]struct{}, len(candidates))
	var accepted []domain.Candidate
	for _, c := range candidates {
		_, dup := seen[c.ID]
		seen[c.ID] = struct{}{}

		if rule := uc.reject(ctx, c, known, dup); rule != "" {
			metrics.FilterDropped.WithLabelValues(rule).Inc()
			uc.logger.Debug().Str("id", c.ID).Str("author", c.Author).Str("rule", rule).Msg("candidate dropped")
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted
}

// reject returns the first matching rejection rule, or "" when c is accepted
func (uc *FilterUsecase) reject(ctx context.Context, c domain.Candidate, known map[string]struct{}, dup bool) string {
	if uc.isBot(c.Author) {
		return RuleSelfAuthor
	}
	if c.IsSelf {
		return RuleSelfOriginated
	}
	if _, ok := known[c.ID]; ok || dup {
		return RuleKnown
	}
	if !uc.hasTrigger(c.Content) {
		return RuleNoTrigger
	}
	if domain.LeadingMentions(c.Content) >= maxLeadingMentions {
		return RuleDeepReply
	}

	stripped := domain.StripText(c.Content)
	if utf8.RuneCountInString(stripped) < minStrippedLength {
		return RuleTooShort
	}
	if uc.shouldIgnore(ctx, stripped) {
		return RuleClassifier
	}
	return ""
}

func (uc *FilterUsecase) isBot(author string) bool {
	bot := domain.NormalizeHandle(uc.cfg.BotIdentity)
	return bot != "" && domain.NormalizeHandle(author) == bot
}

func (uc *FilterUsecase) hasTrigger(content string) bool {
	if len(uc.cfg.SearchTerms) == 0 {
		return true
	}
	lower := strings.ToLower(content)
	for _, term := range uc.cfg.SearchTerms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// shouldIgnore asks the classifier; any failure keeps the candidate
func (uc *FilterUsecase) shouldIgnore(ctx context.Context, text string) bool {
	if uc.llmRepo == nil || uc.cfg.IgnoreCriteria == "" {
		return false
	}

	out, err := uc.llmRepo.Complete(ctx, repo.CompletionRequest{
		System:      uc.prompts.FormatIgnoreSystem(uc.cfg.IgnoreCriteria),
		User:        text,
		Temperature: 0,
		MaxTokens:   classifierTokens,
		Small:       true,
	})
	if err != nil {
		uc.logger.Warn().Err(err).Msg("ignore classifier failed, keeping candidate")
		return false
	}

	ignore, err := ParseIgnoreDecision(out)
	if err != nil {
		uc.logger.Warn().Err(err).Str("output", out).Msg("unreadable classifier output, keeping candidate")
		return false
	}
	return ignore
}

// ParseIgnoreDecision reads {"ignore": bool} from classifier output,
// tolerating code fences and slightly broken JSON
func ParseIgnoreDecision(output string) (bool, error) {
	raw := strings.TrimSpace(output)
	if m := jsonBlockPattern.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	} else if start := strings.Index(raw, "{"); start >= 0 {
		raw = raw[start:]
	}
	if raw == "" {
		return false, fmt.Errorf("empty classifier output")
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return false, fmt.Errorf("failed to repair classifier output: %w", err)
	}

	var decision struct {
		Ignore *bool `json:"ignore"`
	}
	if err := json.Unmarshal([]byte(repaired), &decision); err != nil {
		return false, fmt.Errorf("failed to decode classifier output: %w", err)
	}
	if decision.Ignore == nil {
		return false, fmt.Errorf("classifier output has no ignore field")
	}
	return *decision.Ignore, nil
}
