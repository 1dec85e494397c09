package data

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/infra/heurist"
	"github.com/heurist-network/reply-bridge/internal/middleware"
	"github.com/heurist-network/reply-bridge/internal/retry"
)

// llmRepo implements LLMRepo on the Heurist gateway
type llmRepo struct {
	complete middleware.Func[repo.CompletionRequest, string]
}

// NewLLMRepo creates a new LLM repository
func NewLLMRepo(client *heurist.LLMClient, logger zerolog.Logger) repo.LLMRepo {
	call := func(ctx context.Context, req repo.CompletionRequest) (string, error) {
		return client.Chat(ctx, req.Small, req.System, req.User, req.Temperature, req.MaxTokens)
	}
	return &llmRepo{
		complete: middleware.Chain(call,
			middleware.Timed[repo.CompletionRequest, string]("llm.complete", logger),
			middleware.Retry[repo.CompletionRequest, string](retry.LLMRetryConfig(), logger),
		),
	}
}

// Complete runs one chat completion with retries
func (r *llmRepo) Complete(ctx context.Context, req repo.CompletionRequest) (string, error) {
	return r.complete(ctx, req)
}
