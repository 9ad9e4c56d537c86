package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/piotrostr/ezwhisper/internal/ai"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

const apiVersion = "2023-06-01"

// Client handles communication with Anthropic's Messages API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new Anthropic client
func NewClient(apiKey string, logger *logger.Logger, baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.anthropic.com"
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: base,
		logger:  logger.Named("anthropic"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// -- ChatProvider Implementation --

func (c *Client) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("anthropic API key is required")
	}

	type Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	type Request struct {
		Model     string    `json:"model"`
		MaxTokens int       `json:"max_tokens"`
		System    string    `json:"system,omitempty"`
		Messages  []Message `json:"messages"`
	}

	// Anthropic takes the system prompt as a top-level field.
	var system string
	reqMessages := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
			continue
		}
		reqMessages = append(reqMessages, Message{Role: msg.Role, Content: msg.Content})
	}

	reqBody := Request{
		Model:     config.Model,
		MaxTokens: config.MaxTokens,
		System:    system,
		Messages:  reqMessages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic chat failed: %s %s", resp.Status, string(body))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content in anthropic response")
	}

	return result.Content[0].Text, nil
}
