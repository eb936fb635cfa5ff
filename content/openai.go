// Package content writes update text and subtask names and extracts intents
// with an OpenAI compatible chat model.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Completer runs one chat completion.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error)
}

// Options configures an OpenAI completer. BaseURL points the client at any
// OpenAI compatible endpoint such as Ollama or OpenRouter.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Logger      *log.Logger
}

// OpenAI is a Completer backed by the chat completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *log.Logger
}

// NewOpenAI creates an OpenAI completer.
func NewOpenAI(opts Options) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: opts.Temperature,
		log:         logger,
	}
}

// Complete sends a system and user message and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	o.log.WithFields(log.Fields{
		"model":  o.model,
		"tokens": resp.Usage.TotalTokens,
	}).Debug("chat completion")
	if out == "" {
		return "", errors.New("chat completion returned empty content")
	}
	return out, nil
}
