// Package heurist wraps the Heurist OpenAI-compatible LLM gateway and the image sequencer
package heurist

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// LLMClient is the chat completion client
type LLMClient struct {
	client     *openai.Client
	largeModel string
	smallModel string
}

// NewLLMClient creates a new LLM client against baseURL
func NewLLMClient(baseURL, apiKey, largeModel, smallModel string) *LLMClient {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")
	if smallModel == "" {
		smallModel = largeModel
	}

	return &LLMClient{
		client:     openai.NewClientWithConfig(config),
		largeModel: largeModel,
		smallModel: smallModel,
	}
}

// Chat sends one system and one user message and returns the reply text
func (c *LLMClient) Chat(ctx context.Context, small bool, systemPrompt, userMessage string, temperature float32, maxTokens int) (string, error) {
	model := c.largeModel
	if small {
		model = c.smallModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
