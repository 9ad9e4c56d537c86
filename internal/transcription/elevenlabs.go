package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// Client talks to the ElevenLabs speech-to-text endpoint
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *logger.Logger
}

// NewClient creates a new speech-to-text client
func NewClient(cfg config.TranscriptionConfig, logger *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		logger:  logger.Named("elevenlabs"),
	}
}

// Transcribe sends WAV audio to the speech-to-text service and returns the
// recognized text. language is an ISO code, or "auto" to let the service
// detect the spoken language. The request is not retried on failure.
func (c *Client) Transcribe(ctx context.Context, wavData []byte, apiKey, language string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("elevenlabs API key is required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("model_id", c.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if language != "" && language != "auto" {
		if err := writer.WriteField("language_code", language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := c.baseURL + "/v1/speech-to-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("xi-api-key", apiKey)

	c.logger.Debug("Sending transcription request",
		logger.Int("wav_bytes", len(wavData)),
		logger.String("language", language))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &UpstreamError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	c.logger.Debug("Transcription complete",
		logger.Duration("elapsed", time.Since(start)),
		logger.Int("chars", len(result.Text)))

	return result.Text, nil
}
