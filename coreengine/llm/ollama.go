package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
)

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// OllamaConfig configures an OllamaProvider.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RequestsPerSecond limits outgoing calls; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// OllamaProvider talks to a local Ollama server over /api/chat.
type OllamaProvider struct {
	cfg     OllamaConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  observability.Logger
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates a provider. A nil client gets one with cfg.Timeout.
func NewOllamaProvider(cfg OllamaConfig, client *http.Client, logger observability.Logger) *OllamaProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	p := &OllamaProvider{
		cfg:    cfg,
		client: client,
		logger: logger.Bind("provider", "ollama"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return p
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// Chat implements Provider.
func (p *OllamaProvider) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	options := Options{Model: p.cfg.Model, Temperature: p.cfg.Temperature, MaxTokens: p.cfg.MaxTokens}
	for _, opt := range opts {
		opt(&options)
	}

	messages := make([]ollamaMessage, 0, len(history)+1)
	if options.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: options.System})
	}
	for _, msg := range history {
		om := ollamaMessage{Role: msg.Role, Content: msg.Content}
		for _, path := range msg.Images {
			encoded, err := encodeImage(path)
			if err != nil {
				return "", err
			}
			om.Images = append(om.Images, encoded)
		}
		messages = append(messages, om)
	}

	payload := ollamaChatRequest{
		Model:    options.Model,
		Messages: messages,
		Options:  &ollamaOptions{Temperature: options.Temperature, NumPredict: options.MaxTokens},
	}

	start := time.Now()
	content, err := p.do(ctx, payload)
	durationMS := int(time.Since(start).Milliseconds())
	if err != nil {
		observability.RecordLLMCall("ollama", options.Model, "error", durationMS)
		p.logger.Warn("llm_call_failed", "model", options.Model, "duration_ms", durationMS, "error", err.Error())
		return "", err
	}
	observability.RecordLLMCall("ollama", options.Model, "success", durationMS)
	p.logger.Debug("llm_call_completed", "model", options.Model, "duration_ms", durationMS)
	return content, nil
}

// Generate implements Provider.
func (p *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return p.Chat(ctx, []Message{{Role: "user", Content: prompt}}, opts...)
}

func (p *OllamaProvider) do(ctx context.Context, payload ollamaChatRequest) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	content := strings.TrimSpace(out.Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// Ping checks that the server is reachable.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
