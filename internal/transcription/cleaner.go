package transcription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piotrostr/ezwhisper/internal/ai"
	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

const cleanupSystemPrompt = "You are a text formatting tool. You receive raw speech-to-text output and return ONLY the cleaned version. Fix capitalization and punctuation. Never add commentary, notes, apologies, or explanations. Never say 'I', never ask questions, never add parenthetical remarks. Output the cleaned text and nothing else."

const translateSystemPrompt = "You are a translation tool. You receive raw speech-to-text output and return ONLY its translation into %s. Fix capitalization and punctuation in the result. Never add commentary, notes, apologies, or explanations. Never say 'I', never ask questions, never add parenthetical remarks. Output the translated text and nothing else."

// Cleaner post-processes raw transcripts through a chat model.
// All failures are reported to the caller, who is expected to fall
// back to the raw transcript rather than abort the session.
type Cleaner struct {
	provider ai.ChatProvider
	model    string
	maxTok   int
	timeout  time.Duration
	logger   *logger.Logger
}

// NewCleaner creates a new transcript cleaner
func NewCleaner(provider ai.ChatProvider, cfg config.CleanupConfig, logger *logger.Logger) *Cleaner {
	return &Cleaner{
		provider: provider,
		model:    cfg.Model,
		maxTok:   cfg.MaxTokens,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:   logger.Named("cleaner"),
	}
}

// Cleanup fixes capitalization and punctuation in a raw transcript
func (c *Cleaner) Cleanup(ctx context.Context, rawText string) (string, error) {
	return c.run(ctx, cleanupSystemPrompt, rawText)
}

// Translate renders a raw transcript into the target language
func (c *Cleaner) Translate(ctx context.Context, rawText, targetLanguage string) (string, error) {
	return c.run(ctx, fmt.Sprintf(translateSystemPrompt, targetLanguage), rawText)
}

func (c *Cleaner) run(ctx context.Context, systemPrompt, rawText string) (string, error) {
	if strings.TrimSpace(rawText) == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := c.provider.ChatCompletion(ctx, []ai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: rawText},
	}, ai.ChatConfig{
		Model:     c.model,
		MaxTokens: c.maxTok,
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("Post-processing complete",
		logger.Duration("elapsed", time.Since(start)),
		logger.Int("chars", len(result)))

	return result, nil
}
