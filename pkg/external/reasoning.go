package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/medreport-analyzer/internal/domain"
)

// DefaultDisclaimer is used when the reasoning service omits one.
const DefaultDisclaimer = "This is not medical advice. Please consult a healthcare provider."

// AnalysisInstruction is the system prompt sent to every reasoning backend.
const AnalysisInstruction = `You are a medical report analyst. Given raw text from a medical/lab report, respond with a JSON object only (no markdown, no code block) with this exact structure:
{
  "summary": "2-4 sentence plain-language summary of the report and overall health indication",
  "findings": [{"label": "Finding name", "value": "value or range", "status": "normal" or "attention" or "critical", "note": "optional brief note"}],
  "symptoms": ["possible symptom 1", "possible symptom 2", ...],
  "prevention": ["preventive or lifestyle step 1", "step 2", ...],
  "futureSuggestions": ["follow-up or monitoring suggestion 1", "suggestion 2", ...],
  "recommendations": ["immediate or short-term recommendation 1", "recommendation 2", ...],
  "disclaimer": "Short disclaimer that this is not medical advice and the user should consult a doctor."
}
Status: use "normal" for within range, "attention" for borderline, "critical" for out of range or concerning. Do NOT add any fields beyond the ones specified above.`

// UserPrompt wraps the (already truncated) report text for the user turn.
func UserPrompt(text string) string {
	return "Analyze this medical report text:\n\n" + text
}

// OutcomeKind tags how a reasoning call ended.
type OutcomeKind string

const (
	OutcomeOK             OutcomeKind = "ok"
	OutcomeTransportError OutcomeKind = "transport_error"
	OutcomeEmptyResponse  OutcomeKind = "empty_response"
	OutcomeParseError     OutcomeKind = "parse_error"
	OutcomeSchemaError    OutcomeKind = "schema_error"
)

func (k OutcomeKind) String() string {
	return string(k)
}

// Outcome is the tagged result of one reasoning call. Result is set only
// when Kind is OutcomeOK; Err is set for every other kind.
type Outcome struct {
	Kind   OutcomeKind
	Result *domain.AnalysisResult
	Err    error
	Cached bool
}

// OK reports whether the outcome carries a usable result.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeOK && o.Result != nil
}

func okOutcome(result *domain.AnalysisResult) Outcome {
	return Outcome{Kind: OutcomeOK, Result: result}
}

func failure(kind OutcomeKind, format string, args ...interface{}) Outcome {
	return Outcome{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ReasoningProvider delegates report interpretation to an external service.
type ReasoningProvider interface {
	// Name identifies the backend and model, e.g. "openai:gpt-4o-mini".
	Name() string
	// Analyze never panics and never returns a partially valid result.
	Analyze(ctx context.Context, text string) Outcome
}

// Truncate caps text at maxChars characters (runes, not bytes).
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == maxChars {
			return text[:i]
		}
		count++
	}
	return text
}

// DecodeAnalysis validates the JSON content returned by a reasoning service.
// summary must be a non-empty string, findings and recommendations arrays;
// the remaining arrays and the disclaimer are optional and defaulted.
func DecodeAnalysis(content string) Outcome {
	content = strings.TrimSpace(content)
	if content == "" {
		return failure(OutcomeEmptyResponse, "empty response from reasoning service")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return failure(OutcomeParseError, "response is not a JSON object: %v", err)
	}

	var summary string
	if raw, ok := fields["summary"]; !ok || json.Unmarshal(raw, &summary) != nil || strings.TrimSpace(summary) == "" {
		return failure(OutcomeSchemaError, "summary missing or not a non-empty string")
	}

	findings, err := decodeFindings(fields["findings"])
	if err != nil {
		return failure(OutcomeSchemaError, "invalid findings: %v", err)
	}

	recommendations, ok := decodeStrings(fields["recommendations"])
	if !ok {
		return failure(OutcomeSchemaError, "recommendations missing or not an array of strings")
	}

	result := &domain.AnalysisResult{
		Summary:           summary,
		Findings:          findings,
		Symptoms:          optionalStrings(fields["symptoms"]),
		Prevention:        optionalStrings(fields["prevention"]),
		FutureSuggestions: optionalStrings(fields["futureSuggestions"]),
		Recommendations:   recommendations,
		Disclaimer:        DefaultDisclaimer,
	}

	var disclaimer string
	if raw, ok := fields["disclaimer"]; ok && json.Unmarshal(raw, &disclaimer) == nil && strings.TrimSpace(disclaimer) != "" {
		result.Disclaimer = disclaimer
	}

	return okOutcome(result)
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func decodeStrings(raw json.RawMessage) ([]string, bool) {
	if !isArray(raw) {
		return nil, false
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	if out == nil {
		out = []string{}
	}
	return out, true
}

func optionalStrings(raw json.RawMessage) []string {
	if out, ok := decodeStrings(raw); ok {
		return out
	}
	return []string{}
}

func decodeFindings(raw json.RawMessage) ([]domain.Finding, error) {
	if !isArray(raw) {
		return nil, fmt.Errorf("findings missing or not an array")
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("findings must be objects: %w", err)
	}

	findings := make([]domain.Finding, 0, len(items))
	for i, item := range items {
		var f domain.Finding

		if err := json.Unmarshal(item["label"], &f.Label); err != nil || strings.TrimSpace(f.Label) == "" {
			return nil, fmt.Errorf("finding %d: label missing or not a string", i)
		}

		value, err := displayValue(item["value"])
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		f.Value = value

		var status string
		if err := json.Unmarshal(item["status"], &status); err != nil {
			return nil, fmt.Errorf("finding %d: status missing or not a string", i)
		}
		parsed, err := domain.ParseStatus(strings.ToLower(strings.TrimSpace(status)))
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		f.Status = parsed

		// note is optional commentary; anything but a string is dropped
		if note, ok := item["note"]; ok {
			var text string
			if json.Unmarshal(note, &text) == nil {
				f.Note = text
			}
		}

		findings = append(findings, f)
	}
	return findings, nil
}

// displayValue accepts a string or a bare number for a finding value.
func displayValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}
	if string(bytes.TrimSpace(raw)) == "null" {
		return "", nil
	}
	return "", fmt.Errorf("value must be a string or number")
}
