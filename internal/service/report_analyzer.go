package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/logging"
	"github.com/medreport-analyzer/pkg/external"
)

// Default orchestration limits
const (
	DefaultMinExternalChars = 50
	DefaultExternalTimeout  = 45 * time.Second
)

// Recorder receives analysis telemetry. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordAnalysis(analysis *domain.Analysis)
	RecordExternalOutcome(kind string, cached bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordAnalysis(*domain.Analysis)    {}
func (nopRecorder) RecordExternalOutcome(string, bool) {}

// ReportAnalyzer turns report text into a structured analysis. It prefers
// the reasoning provider and falls back to the heuristic synthesizer on any
// provider failure, so it never fails.
type ReportAnalyzer struct {
	provider         external.ReasoningProvider
	heuristic        *HeuristicSynthesizer
	logger           *logrus.Logger
	recorder         Recorder
	minExternalChars int
	externalTimeout  time.Duration
}

// Option configures a ReportAnalyzer
type Option func(*ReportAnalyzer)

// WithProvider enables the external reasoning path
func WithProvider(p external.ReasoningProvider) Option {
	return func(a *ReportAnalyzer) { a.provider = p }
}

// WithLogger sets the logger
func WithLogger(l *logrus.Logger) Option {
	return func(a *ReportAnalyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRecorder sets the telemetry sink
func WithRecorder(r Recorder) Option {
	return func(a *ReportAnalyzer) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithMinExternalChars sets the length text must exceed before the provider is tried
func WithMinExternalChars(n int) Option {
	return func(a *ReportAnalyzer) { a.minExternalChars = n }
}

// WithExternalTimeout bounds each provider call
func WithExternalTimeout(d time.Duration) Option {
	return func(a *ReportAnalyzer) {
		if d > 0 {
			a.externalTimeout = d
		}
	}
}

// NewReportAnalyzer creates a report analyzer. Without WithProvider only the
// heuristic path is used.
func NewReportAnalyzer(opts ...Option) *ReportAnalyzer {
	a := &ReportAnalyzer{
		heuristic:        NewHeuristicSynthesizer(),
		logger:           logging.Discard(),
		recorder:         nopRecorder{},
		minExternalChars: DefaultMinExternalChars,
		externalTimeout:  DefaultExternalTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ExternalEnabled reports whether a reasoning provider is configured
func (a *ReportAnalyzer) ExternalEnabled() bool {
	return a.provider != nil
}

// ProviderName returns the configured provider name, or "" when none
func (a *ReportAnalyzer) ProviderName() string {
	if a.provider == nil {
		return ""
	}
	return a.provider.Name()
}

// AnalyzeReportText analyzes text and reports which path produced the result.
func (a *ReportAnalyzer) AnalyzeReportText(ctx context.Context, text string) *domain.Analysis {
	start := time.Now()
	fields := logging.TextFields(text)

	analysis := &domain.Analysis{Path: domain.PathHeuristic}

	if a.provider != nil && utf8.RuneCountInString(text) > a.minExternalChars {
		analysis.Provider = a.provider.Name()

		outcome := a.callProvider(ctx, text)
		a.recorder.RecordExternalOutcome(outcome.Kind.String(), outcome.Cached)

		if outcome.OK() {
			analysis.Path = domain.PathExternal
			analysis.Result = outcome.Result
			analysis.Cached = outcome.Cached
		} else {
			analysis.FallbackReason = fmt.Sprintf("%s: %v", outcome.Kind, outcome.Err)
			a.logger.WithFields(fields).WithFields(logrus.Fields{
				"provider":     analysis.Provider,
				"outcome_kind": outcome.Kind.String(),
				"error":        logging.SanitizeError(outcome.Err),
			}).Warn("Reasoning service failed, using heuristic analysis")
		}
	}

	if analysis.Result == nil {
		analysis.Result = a.heuristic.Synthesize(text)
	}
	analysis.Duration = time.Since(start)

	counts := analysis.Result.CountByStatus()
	a.logger.WithFields(fields).WithFields(logrus.Fields{
		"path":     analysis.Path,
		"cached":   analysis.Cached,
		"findings": len(analysis.Result.Findings),
		"critical": counts[domain.StatusCritical],
		"duration": analysis.Duration.String(),
	}).Info("Report analysis completed")

	a.recorder.RecordAnalysis(analysis)
	return analysis
}

// AnalyzeReportTextResult returns only the structured result.
func (a *ReportAnalyzer) AnalyzeReportTextResult(ctx context.Context, text string) *domain.AnalysisResult {
	return a.AnalyzeReportText(ctx, text).Result
}

// callProvider bounds the provider call and converts panics into failures.
func (a *ReportAnalyzer) callProvider(ctx context.Context, text string) (outcome external.Outcome) {
	ctx, cancel := context.WithTimeout(ctx, a.externalTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			outcome = external.Outcome{
				Kind: external.OutcomeTransportError,
				Err:  fmt.Errorf("provider panicked: %v", r),
			}
		}
	}()

	outcome = a.provider.Analyze(ctx, text)
	if outcome.Kind == "" {
		outcome.Kind = external.OutcomeTransportError
		if outcome.Err == nil {
			outcome.Err = ctx.Err()
		}
	}
	if outcome.Kind == external.OutcomeOK && outcome.Result == nil {
		outcome = external.Outcome{Kind: external.OutcomeEmptyResponse, Err: fmt.Errorf("provider returned no result")}
	}
	if !outcome.OK() && outcome.Err == nil {
		outcome.Err = fmt.Errorf("provider reported %s", outcome.Kind)
	}
	return outcome
}
