package repo

import "context"

// CompletionRequest is one chat completion call
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	Small       bool // use the small (cheap) model
}

// LLMRepo is the LLM completion service
type LLMRepo interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
