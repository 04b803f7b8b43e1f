package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"velvetcode/internal/llm"
	"velvetcode/internal/metrics"
	"velvetcode/internal/models"
	"velvetcode/internal/prompts"
)

const defaultSuggestTimeout = 30 * time.Second

var (
	ErrAssistantUnavailable = errors.New("AI assistant is not configured")
	ErrInvalidSuggestion    = errors.New("invalid suggestion request")
)

// Assistant turns suggestion requests into prompts and asks the provider.
type Assistant struct {
	provider llm.Provider
	prompts  *prompts.PromptManager
	timeout  time.Duration
}

func NewAssistant(provider llm.Provider, pm *prompts.PromptManager) *Assistant {
	return &Assistant{provider: provider, prompts: pm, timeout: defaultSuggestTimeout}
}

func (a *Assistant) Available() bool { return a != nil && a.provider != nil && a.prompts != nil }

func (a *Assistant) Suggest(ctx context.Context, req models.SuggestRequest) (string, error) {
	if !req.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidSuggestion, req.Kind)
	}
	if strings.TrimSpace(req.Code) == "" {
		return "", fmt.Errorf("%w: code is required", ErrInvalidSuggestion)
	}
	if !a.Available() {
		return "", ErrAssistantUnavailable
	}

	language := req.Language
	if language == "" {
		language = "plaintext"
	}
	prompt, err := a.prompts.BuildPrompt(string(req.Kind), prompts.DefaultDetail, map[string]string{
		"Language": language,
		"Code":     req.Code,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	message, err := a.provider.GenerateContent(ctx, prompt)
	if err != nil {
		metrics.RecordSuggestion(string(req.Kind), metrics.OutcomeError)
		return "", err
	}
	metrics.RecordSuggestion(string(req.Kind), metrics.OutcomeOK)
	return message, nil
}
