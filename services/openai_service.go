package services

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"matcha-back/models"
)

// OpenAIResponder is the fallback provider. Text only; it never returns an
// image payload.
type OpenAIResponder struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIResponder(baseURL, apiKey, model string, logger *zap.Logger) *OpenAIResponder {
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIResponder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func (o *OpenAIResponder) SendTurn(ctx context.Context, history []models.Message, text string) (TurnReply, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
	}
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return TurnReply{}, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return TurnReply{}, fmt.Errorf("openai returned no choices")
	}

	return TurnReply{Text: StripReasoning(resp.Choices[0].Message.Content)}, nil
}
