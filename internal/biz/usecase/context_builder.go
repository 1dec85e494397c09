package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/domain"
	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/conf"
)

// DefaultMaxThreadDepth bounds the parent walk
const DefaultMaxThreadDepth = 50

// ContextBuilderUsecase assembles conversation threads for replies
type ContextBuilderUsecase struct {
	platformRepo repo.PlatformRepo
	queueRepo    repo.QueueRepo
	prompts      *conf.PromptsConfig
	maxDepth     int
	logger       zerolog.Logger
}

// NewContextBuilderUsecase creates a new context builder usecase
func NewContextBuilderUsecase(
	platformRepo repo.PlatformRepo,
	queueRepo repo.QueueRepo,
	prompts *conf.PromptsConfig,
	logger zerolog.Logger,
) *ContextBuilderUsecase {
	if prompts == nil {
		prompts = conf.DefaultPromptsConfig()
	}
	return &ContextBuilderUsecase{
		platformRepo: platformRepo,
		queueRepo:    queueRepo,
		prompts:      prompts,
		maxDepth:     DefaultMaxThreadDepth,
		logger:       logger,
	}
}

// BuildThread walks parent pointers up from item and returns the chain
// root first, item last. An ancestor that cannot be resolved ends the walk.
func (uc *ContextBuilderUsecase) BuildThread(ctx context.Context, item *domain.WorkItem) []domain.ThreadEntry {
	chain := []domain.ThreadEntry{item.AsThreadEntry()}
	visited := map[string]struct{}{item.ID: {}}

	parentID := item.ParentID
	for parentID != "" && len(chain) < uc.maxDepth {
		if _, ok := visited[parentID]; ok {
			uc.logger.Warn().Str("id", item.ID).Str("parent_id", parentID).Msg("cycle in parent chain, stopping walk")
			break
		}
		visited[parentID] = struct{}{}

		entry, err := uc.resolve(ctx, parentID)
		if err != nil {
			uc.logger.Warn().Err(err).Str("id", item.ID).Str("parent_id", parentID).Msg("ancestor unavailable, truncating thread")
			break
		}
		chain = append(chain, *entry)
		parentID = entry.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	if len(chain) > 1 {
		if err := uc.queueRepo.SaveThread(ctx, chain[0].ID, chain); err != nil {
			uc.logger.Warn().Err(err).Str("root_id", chain[0].ID).Msg("failed to cache thread")
		}
	}
	return chain
}

// resolve reads an ancestor from the thread cache, falling back to the platform
func (uc *ContextBuilderUsecase) resolve(ctx context.Context, id string) (*domain.ThreadEntry, error) {
	entry, err := uc.queueRepo.LookupThreadEntry(ctx, id)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		uc.logger.Debug().Err(err).Str("id", id).Msg("thread cache lookup failed")
	}

	entry, err = uc.platformRepo.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", id, err)
	}
	return entry, nil
}

// FormatThreadPrompt renders a thread and its latest entry as a reply prompt
func (uc *ContextBuilderUsecase) FormatThreadPrompt(entries []domain.ThreadEntry, latest domain.ThreadEntry) string {
	var sb strings.Builder
	sb.WriteString(uc.prompts.Reply.ThreadHeader)
	sb.WriteString("\n\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("@%s: %s\n", e.Author, e.Text))
	}
	sb.WriteString("\n")

	last := uc.prompts.Reply.ThreadLatest
	last = strings.ReplaceAll(last, "{{author}}", latest.Author)
	last = strings.ReplaceAll(last, "{{text}}", latest.Text)
	sb.WriteString(last)
	sb.WriteString("\n\n")
	sb.WriteString(uc.prompts.Reply.ThreadInstruction)
	return sb.String()
}
