// Package domain contains the core entities of the medical report analysis
// engine: reference ranges, extracted lab values, severity-tiered findings
// and the structured analysis result handed back to callers.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status is the severity tier of a single finding.
type Status string

const (
	StatusNormal    Status = "normal"
	StatusAttention Status = "attention"
	StatusCritical  Status = "critical"
)

// AnalysisPath identifies which route produced an analysis result.
type AnalysisPath string

const (
	PathExternal  AnalysisPath = "external"
	PathHeuristic AnalysisPath = "heuristic"
)

// Validation errors for analysis data integrity
var (
	ErrInvalidStatus  = errors.New("invalid finding status")
	ErrInvalidPath    = errors.New("invalid analysis path")
	ErrEmptyMarker    = errors.New("marker name cannot be empty")
	ErrInvertedRange  = errors.New("reference range minimum exceeds maximum")
	ErrRecordNotFound = errors.New("analysis record not found")
)

// IsValid reports whether the status is one of the three severity tiers.
func (s Status) IsValid() bool {
	switch s {
	case StatusNormal, StatusAttention, StatusCritical:
		return true
	default:
		return false
	}
}

// Rank orders the tiers: normal < attention < critical. Unknown statuses rank below normal.
func (s Status) Rank() int {
	switch s {
	case StatusNormal:
		return 1
	case StatusAttention:
		return 2
	case StatusCritical:
		return 3
	default:
		return 0
	}
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a string into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}

// IsValid reports whether the path is a known analysis route.
func (p AnalysisPath) IsValid() bool {
	return p == PathExternal || p == PathHeuristic
}

// ReferenceRange is the normal interval for a clinical marker.
type ReferenceRange struct {
	Marker string  `json:"marker"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Unit   string  `json:"unit"`
}

// Validate checks the range is usable for classification.
func (r ReferenceRange) Validate() error {
	if r.Marker == "" {
		return ErrEmptyMarker
	}
	if r.Min > r.Max {
		return fmt.Errorf("%w: %s (%g > %g)", ErrInvertedRange, r.Marker, r.Min, r.Max)
	}
	return nil
}

// ExtractedValue is a single numeric match pulled out of report text.
// Offset is the byte position of the match and only drives ordering.
type ExtractedValue struct {
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	Offset int     `json:"-"`
}

// Finding is one reportable line item of an analysis.
type Finding struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Status Status `json:"status"`
	Note   string `json:"note,omitempty"`
}

// AnalysisResult is the structured report produced for one document.
type AnalysisResult struct {
	Summary           string    `json:"summary"`
	Findings          []Finding `json:"findings"`
	Symptoms          []string  `json:"symptoms"`
	Prevention        []string  `json:"prevention"`
	FutureSuggestions []string  `json:"futureSuggestions"`
	Recommendations   []string  `json:"recommendations"`
	Disclaimer        string    `json:"disclaimer"`
}

// HasCritical reports whether any finding is in the critical tier.
func (r *AnalysisResult) HasCritical() bool {
	for _, f := range r.Findings {
		if f.Status == StatusCritical {
			return true
		}
	}
	return false
}

// CountByStatus tallies findings per severity tier.
func (r *AnalysisResult) CountByStatus() map[Status]int {
	counts := map[Status]int{
		StatusNormal:    0,
		StatusAttention: 0,
		StatusCritical:  0,
	}
	for _, f := range r.Findings {
		counts[f.Status]++
	}
	return counts
}

// Analysis wraps a result with how it was produced.
type Analysis struct {
	Result         *AnalysisResult `json:"result"`
	Path           AnalysisPath    `json:"path"`
	Provider       string          `json:"provider,omitempty"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
	Cached         bool            `json:"cached"`
	Duration       time.Duration   `json:"duration_ns"`
}

// Clone returns a deep copy so cached results cannot be mutated by callers.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Findings = append([]Finding(nil), r.Findings...)
	out.Symptoms = append([]string(nil), r.Symptoms...)
	out.Prevention = append([]string(nil), r.Prevention...)
	out.FutureSuggestions = append([]string(nil), r.FutureSuggestions...)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	return &out
}
