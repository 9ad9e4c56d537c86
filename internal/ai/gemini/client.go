package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/piotrostr/ezwhisper/internal/ai"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// Client represents a Google Gemini API client backed by the genai SDK
type Client struct {
	apiKey string
	logger *logger.Logger
}

// NewClient creates a new Gemini client
func NewClient(apiKey string, logger *logger.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		logger: logger.Named("gemini"),
	}
}

// -- ChatProvider Implementation --

func (c *Client) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}

	var contents []*genai.Content
	genConfig := &genai.GenerateContentConfig{}

	if config.Temperature != 0 {
		temp := float32(config.Temperature)
		genConfig.Temperature = &temp
	}
	if config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(config.MaxTokens)
	}

	for _, msg := range messages {
		if msg.Role == "system" {
			genConfig.SystemInstruction = genai.NewContentFromText(msg.Content, genai.RoleUser)
			continue
		}
		var role genai.Role = genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	resp, err := client.Models.GenerateContent(ctx, config.Model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini chat failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no content in gemini response")
	}

	return text, nil
}
