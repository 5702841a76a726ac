package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	commonhttp "github-insight/internal/common/http"
)

type GatewayConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// GatewayGenerator posts prompts to a GenAI HTTP gateway:
// POST {base}/api/ai/generate {prompt, max_tokens, temperature} -> {text}.
type GatewayGenerator struct {
	config GatewayConfig
	client *commonhttp.Client
}

func NewGatewayGenerator(cfg GatewayConfig) *GatewayGenerator {
	return &GatewayGenerator{
		config: cfg,
		// deadline comes from the context only
		client: commonhttp.NewClient(0).WithHeader("Content-Type", "application/json"),
	}
}

func (g *GatewayGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.config.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{
		"prompt":      prompt,
		"max_tokens":  g.config.MaxTokens,
		"temperature": g.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelFailed, err)
	}

	url := strings.TrimRight(g.config.BaseURL, "/") + "/api/ai/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelFailed, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrModelFailed, resp.StatusCode)
	}

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrModelFailed, err)
	}

	text := strings.TrimSpace(apiResponse.Text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
