package external

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint
type OpenAIClient struct {
	baseURL       string
	apiKey        string
	model         string
	maxTokens     int
	maxInputChars int
	httpClient    *http.Client
	rateLimit     *rate.Limiter
}

// OpenAIConfig represents configuration for the chat completions client
type OpenAIConfig struct {
	BaseURL       string        `json:"base_url"`
	APIKey        string        `json:"api_key"`
	Model         string        `json:"model"`
	MaxTokens     int           `json:"max_tokens"`
	MaxInputChars int           `json:"max_input_chars"`
	Timeout       time.Duration `json:"timeout"`
	RateLimit     int           `json:"rate_limit"` // requests per second
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new chat completions client
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1500
	}
	if config.MaxInputChars == 0 {
		config.MaxInputChars = 12000
	}
	if config.Timeout == 0 {
		config.Timeout = 40 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	return &OpenAIClient{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		apiKey:        config.APIKey,
		model:         config.Model,
		maxTokens:     config.MaxTokens,
		maxInputChars: config.MaxInputChars,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Name identifies the backend and model
func (c *OpenAIClient) Name() string {
	return "openai:" + c.model
}

// Analyze sends the report text to the chat completions endpoint and decodes
// the structured reply.
func (c *OpenAIClient) Analyze(ctx context.Context, text string) Outcome {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return failure(OutcomeTransportError, "rate limiter: %v", err)
	}

	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: AnalysisInstruction},
			{Role: "user", Content: UserPrompt(Truncate(text, c.maxInputChars))},
		},
		MaxTokens: c.maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failure(OutcomeTransportError, "failed to encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return failure(OutcomeTransportError, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure(OutcomeTransportError, "failed to execute request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return failure(OutcomeTransportError, "reasoning API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(OutcomeTransportError, "failed to read response body: %v", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return failure(OutcomeEmptyResponse, "empty response body")
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return failure(OutcomeParseError, "failed to decode completion: %v", err)
	}
	if len(completion.Choices) == 0 {
		return failure(OutcomeEmptyResponse, "completion contained no choices")
	}

	return DecodeAnalysis(completion.Choices[0].Message.Content)
}
