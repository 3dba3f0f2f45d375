package external

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// generateFunc produces the raw model text for a prompt pair.
type generateFunc func(ctx context.Context, instruction, prompt string) (string, error)

// GeminiClient asks a Gemini model for the structured analysis
type GeminiClient struct {
	model         string
	maxInputChars int
	generate      generateFunc
}

// GeminiConfig represents configuration for the Gemini client
type GeminiConfig struct {
	APIKey        string `json:"api_key"`
	Model         string `json:"model"`
	MaxInputChars int    `json:"max_input_chars"`
}

// NewGeminiClient creates a Gemini-backed reasoning provider
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash-lite"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	generate := func(ctx context.Context, instruction, prompt string) (string, error) {
		contents := []*genai.Content{
			{
				Parts: []*genai.Part{
					{Text: instruction},
					{Text: prompt},
				},
			},
		}

		result, err := client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			return "", err
		}
		return result.Text(), nil
	}

	return newGeminiClient(config, generate), nil
}

func newGeminiClient(config GeminiConfig, generate generateFunc) *GeminiClient {
	if config.MaxInputChars == 0 {
		config.MaxInputChars = 12000
	}
	return &GeminiClient{
		model:         config.Model,
		maxInputChars: config.MaxInputChars,
		generate:      generate,
	}
}

// Name identifies the backend and model
func (g *GeminiClient) Name() string {
	return "gemini:" + g.model
}

// Analyze sends the report text to Gemini and decodes the JSON reply.
func (g *GeminiClient) Analyze(ctx context.Context, text string) Outcome {
	content, err := g.generate(ctx, AnalysisInstruction, UserPrompt(Truncate(text, g.maxInputChars)))
	if err != nil {
		return failure(OutcomeTransportError, "Gemini GenerateContent failed: %v", err)
	}
	return DecodeAnalysis(content)
}
