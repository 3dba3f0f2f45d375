package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReply = `{
  "summary": "Your lipid panel is mostly within range.",
  "findings": [
    {"label": "LDL", "value": "130 mg/dL", "status": "attention", "note": "Slightly high"},
    {"label": "HDL", "value": 55, "status": "Normal"}
  ],
  "symptoms": ["None expected"],
  "recommendations": ["Repeat the lipid panel in 6 months"]
}`

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

func TestDecodeAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantKind OutcomeKind
	}{
		{name: "valid reply", content: validReply, wantKind: OutcomeOK},
		{name: "empty content", content: "   \n", wantKind: OutcomeEmptyResponse},
		{name: "not json", content: "Sure! Here is your analysis.", wantKind: OutcomeParseError},
		{name: "json array", content: `[1,2,3]`, wantKind: OutcomeParseError},
		{name: "missing summary", content: `{"findings": [], "recommendations": []}`, wantKind: OutcomeSchemaError},
		{name: "blank summary", content: `{"summary": " ", "findings": [], "recommendations": []}`, wantKind: OutcomeSchemaError},
		{name: "findings not array", content: `{"summary": "x", "findings": {}, "recommendations": []}`, wantKind: OutcomeSchemaError},
		{name: "recommendations missing", content: `{"summary": "x", "findings": []}`, wantKind: OutcomeSchemaError},
		{name: "recommendations wrong element type", content: `{"summary": "x", "findings": [], "recommendations": [1]}`, wantKind: OutcomeSchemaError},
		{name: "unknown status", content: `{"summary": "x", "findings": [{"label": "A", "value": "1", "status": "high"}], "recommendations": []}`, wantKind: OutcomeSchemaError},
		{name: "finding without label", content: `{"summary": "x", "findings": [{"value": "1", "status": "normal"}], "recommendations": []}`, wantKind: OutcomeSchemaError},
		{name: "finding value object", content: `{"summary": "x", "findings": [{"label": "A", "value": {}, "status": "normal"}], "recommendations": []}`, wantKind: OutcomeSchemaError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := DecodeAnalysis(tt.content)
			assert.Equal(t, tt.wantKind, outcome.Kind)
			if tt.wantKind == OutcomeOK {
				assert.NoError(t, outcome.Err)
				assert.NotNil(t, outcome.Result)
			} else {
				assert.Error(t, outcome.Err)
				assert.Nil(t, outcome.Result)
			}
		})
	}
}

func TestDecodeAnalysis_Defaults(t *testing.T) {
	outcome := DecodeAnalysis(validReply)
	require.True(t, outcome.OK())

	result := outcome.Result
	require.Len(t, result.Findings, 2)
	assert.Equal(t, domain.StatusAttention, result.Findings[0].Status)
	assert.Equal(t, "Slightly high", result.Findings[0].Note)
	assert.Equal(t, "55", result.Findings[1].Value)
	assert.Equal(t, domain.StatusNormal, result.Findings[1].Status)

	assert.Equal(t, []string{"None expected"}, result.Symptoms)
	assert.Equal(t, []string{}, result.Prevention)
	assert.Equal(t, []string{}, result.FutureSuggestions)
	assert.Equal(t, DefaultDisclaimer, result.Disclaimer)
}

func TestDecodeAnalysis_NonStringNoteDropped(t *testing.T) {
	outcome := DecodeAnalysis(`{
		"summary": "Mixed notes",
		"findings": [
			{"label": "TSH", "value": "2.1", "status": "normal", "note": 42},
			{"label": "HDL", "value": "35", "status": "attention", "note": "Low"}
		],
		"recommendations": []
	}`)
	require.True(t, outcome.OK())

	require.Len(t, outcome.Result.Findings, 2)
	assert.Empty(t, outcome.Result.Findings[0].Note)
	assert.Equal(t, "Low", outcome.Result.Findings[1].Note)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "µµ", Truncate("µµµ", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestOpenAIClient_Analyze(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind OutcomeKind
	}{
		{name: "successful analysis", status: http.StatusOK, body: completionBody(validReply), wantKind: OutcomeOK},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error": "boom"}`, wantKind: OutcomeTransportError},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error": "bad key"}`, wantKind: OutcomeTransportError},
		{name: "empty body", status: http.StatusOK, body: "", wantKind: OutcomeEmptyResponse},
		{name: "no choices", status: http.StatusOK, body: `{"choices": []}`, wantKind: OutcomeEmptyResponse},
		{name: "empty content", status: http.StatusOK, body: completionBody(""), wantKind: OutcomeEmptyResponse},
		{name: "prose content", status: http.StatusOK, body: completionBody("I cannot help with that."), wantKind: OutcomeParseError},
		{name: "garbage envelope", status: http.StatusOK, body: `<html>`, wantKind: OutcomeParseError},
		{name: "schema mismatch", status: http.StatusOK, body: completionBody(`{"summary": "x"}`), wantKind: OutcomeSchemaError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewOpenAIClient(OpenAIConfig{
				BaseURL:   server.URL,
				APIKey:    "test-key",
				Timeout:   5 * time.Second,
				RateLimit: 100,
			})

			outcome := client.Analyze(context.Background(), "Glucose: 92 mg/dL")
			assert.Equal(t, tt.wantKind, outcome.Kind)
		})
	}
}

func TestOpenAIClient_RequestShape(t *testing.T) {
	var captured chatCompletionRequest
	var authHeader, path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, completionBody(validReply))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{
		BaseURL:       server.URL + "/",
		APIKey:        "sk-test",
		MaxInputChars: 10,
		RateLimit:     100,
	})
	assert.Equal(t, "openai:gpt-4o-mini", client.Name())

	outcome := client.Analyze(context.Background(), strings.Repeat("x", 50))
	require.True(t, outcome.OK())

	assert.Equal(t, "Bearer sk-test", authHeader)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.Equal(t, 1500, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, AnalysisInstruction, captured.Messages[0].Content)
	assert.Equal(t, UserPrompt(strings.Repeat("x", 10)), captured.Messages[1].Content)
}

func TestOpenAIClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, completionBody(validReply))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k", RateLimit: 100})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	outcome := client.Analyze(ctx, "Glucose: 92")
	assert.Equal(t, OutcomeTransportError, outcome.Kind)
}

func TestGeminiClient_Analyze(t *testing.T) {
	var gotInstruction, gotPrompt string
	client := newGeminiClient(GeminiConfig{Model: "gemini-test", MaxInputChars: 5}, func(ctx context.Context, instruction, prompt string) (string, error) {
		gotInstruction = instruction
		gotPrompt = prompt
		return validReply, nil
	})

	assert.Equal(t, "gemini:gemini-test", client.Name())

	outcome := client.Analyze(context.Background(), "abcdefghij")
	require.True(t, outcome.OK())
	assert.Equal(t, AnalysisInstruction, gotInstruction)
	assert.Equal(t, UserPrompt("abcde"), gotPrompt)
}

func TestGeminiClient_Failures(t *testing.T) {
	failing := newGeminiClient(GeminiConfig{Model: "m"}, func(ctx context.Context, instruction, prompt string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	assert.Equal(t, OutcomeTransportError, failing.Analyze(context.Background(), "text").Kind)

	empty := newGeminiClient(GeminiConfig{Model: "m"}, func(ctx context.Context, instruction, prompt string) (string, error) {
		return "", nil
	})
	assert.Equal(t, OutcomeEmptyResponse, empty.Analyze(context.Background(), "text").Kind)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

// stubProvider returns queued outcomes and counts calls.
type stubProvider struct {
	mu       sync.Mutex
	name     string
	outcomes []Outcome
	calls    int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Analyze(ctx context.Context, text string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.outcomes) == 0 {
		return failure(OutcomeTransportError, "no outcome queued")
	}
	o := s.outcomes[0]
	if len(s.outcomes) > 1 {
		s.outcomes = s.outcomes[1:]
	}
	return o
}

func TestResilientProvider_OpensOnTransportFailures(t *testing.T) {
	stub := &stubProvider{name: "stub", outcomes: []Outcome{failure(OutcomeTransportError, "down")}}
	provider := NewResilientProvider(stub, CircuitBreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	}, nil)

	for i := 0; i < 3; i++ {
		assert.Equal(t, OutcomeTransportError, provider.Analyze(context.Background(), "x").Kind)
	}
	assert.Equal(t, gobreaker.StateOpen, provider.State())

	outcome := provider.Analyze(context.Background(), "x")
	assert.Equal(t, OutcomeTransportError, outcome.Kind)
	assert.Contains(t, outcome.Err.Error(), "unavailable")
	assert.Equal(t, 3, stub.calls)
}

func TestResilientProvider_ParseErrorsDoNotTrip(t *testing.T) {
	stub := &stubProvider{name: "stub", outcomes: []Outcome{DecodeAnalysis("not json")}}
	provider := NewResilientProvider(stub, CircuitBreakerConfig{MinRequests: 2, FailureRatio: 0.5}, nil)

	for i := 0; i < 5; i++ {
		assert.Equal(t, OutcomeParseError, provider.Analyze(context.Background(), "x").Kind)
	}
	assert.Equal(t, gobreaker.StateClosed, provider.State())
	assert.Equal(t, 5, stub.calls)
}

func TestResilientProvider_PassesSuccess(t *testing.T) {
	stub := &stubProvider{name: "stub", outcomes: []Outcome{DecodeAnalysis(validReply)}}
	provider := NewResilientProvider(stub, CircuitBreakerConfig{}, nil)

	outcome := provider.Analyze(context.Background(), "x")
	assert.True(t, outcome.OK())
	assert.Equal(t, "stub", provider.Name())
}

// mapCache is an in-test ResultCache.
type mapCache struct {
	mu    sync.Mutex
	items map[string]*domain.AnalysisResult
	err   error
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]*domain.AnalysisResult)}
}

func (m *mapCache) Get(ctx context.Context, key string) (*domain.AnalysisResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	r, ok := m.items[key]
	return r, ok, nil
}

func (m *mapCache) Set(ctx context.Context, key string, result *domain.AnalysisResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items[key] = result
	return nil
}

func TestCachingProvider_HitAfterSuccess(t *testing.T) {
	stub := &stubProvider{name: "stub", outcomes: []Outcome{DecodeAnalysis(validReply)}}
	cache := newMapCache()
	provider := NewCachingProvider(stub, cache, time.Hour, 100, nil)

	first := provider.Analyze(context.Background(), "Glucose: 92")
	require.True(t, first.OK())
	assert.False(t, first.Cached)

	second := provider.Analyze(context.Background(), "Glucose: 92")
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, 1, stub.calls)

	// mutating a returned result must not leak into the cache
	second.Result.Findings[0].Label = "changed"
	third := provider.Analyze(context.Background(), "Glucose: 92")
	assert.Equal(t, "LDL", third.Result.Findings[0].Label)
}

func TestCachingProvider_FailuresNotCached(t *testing.T) {
	stub := &stubProvider{name: "stub", outcomes: []Outcome{DecodeAnalysis("{}")}}
	cache := newMapCache()
	provider := NewCachingProvider(stub, cache, time.Hour, 100, nil)

	provider.Analyze(context.Background(), "text")
	provider.Analyze(context.Background(), "text")
	assert.Equal(t, 2, stub.calls)
	assert.Empty(t, cache.items)
}

func TestCachingProvider_CacheErrorsIgnored(t *testing.T) {
	stub := &stubProvider{name: "stub", outcomes: []Outcome{DecodeAnalysis(validReply)}}
	cache := newMapCache()
	cache.err = errors.New("redis down")
	provider := NewCachingProvider(stub, cache, time.Hour, 100, nil)

	outcome := provider.Analyze(context.Background(), "text")
	assert.True(t, outcome.OK())
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("openai:gpt-4o-mini", "Glucose: 92", 100)
	b := CacheKey("gemini:flash", "Glucose: 92", 100)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)

	// text beyond the truncation limit does not change the key
	assert.Equal(t, CacheKey("p", "abcdef", 3), CacheKey("p", "abcxyz", 3))
}

func TestNewRedisResultCache_InvalidURL(t *testing.T) {
	_, err := NewRedisResultCache(domain.CacheConfig{RedisURL: "not-a-url://"})
	assert.Error(t, err)
}
