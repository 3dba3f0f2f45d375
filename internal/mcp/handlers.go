package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/history"
	"github.com/medreport-analyzer/internal/logging"
	"github.com/medreport-analyzer/internal/service"
)

// AnalyzeReportParams defines parameters for the analyze_report tool
type AnalyzeReportParams struct {
	Text   string `json:"text" jsonschema:"the extracted report text to analyze"`
	Source string `json:"source,omitempty" jsonschema:"optional label such as the original file name"`
}

// AnalyzeReportResult defines the result structure for the analyze_report tool
type AnalyzeReportResult struct {
	ID             string                 `json:"id,omitempty"`
	Path           domain.AnalysisPath    `json:"path"`
	Provider       string                 `json:"provider,omitempty"`
	FallbackReason string                 `json:"fallback_reason,omitempty"`
	Cached         bool                   `json:"cached"`
	InputChars     int                    `json:"input_chars"`
	Result         *domain.AnalysisResult `json:"result"`
}

// ReferenceRangeParams defines parameters for the reference_range tool
type ReferenceRangeParams struct {
	Marker string `json:"marker,omitempty" jsonschema:"marker name, case-insensitive; empty lists all"`
}

// ReferenceRangeResult defines the result structure for the reference_range tool
type ReferenceRangeResult struct {
	Ranges []domain.ReferenceRange `json:"ranges"`
}

// ListAnalysesParams defines parameters for the list_analyses tool
type ListAnalysesParams struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum records to return, default 20"`
	Offset int `json:"offset,omitempty" jsonschema:"records to skip"`
}

// ListAnalysesResult defines the result structure for the list_analyses tool
type ListAnalysesResult struct {
	Records []*history.Record `json:"records"`
	Total   int64             `json:"total"`
}

// GetAnalysisParams defines parameters for the get_analysis tool
type GetAnalysisParams struct {
	ID string `json:"id" jsonschema:"analysis id returned by analyze_report"`
}

func (s *Server) handleAnalyzeReport(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeReportParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "analyze_report").WithFields(logging.TextFields(in.Text)).Info("Tool invoked")

	analysis := s.analyzer.AnalyzeReportText(ctx, in.Text)
	rec := history.NewRecord(in.Source, in.Text, analysis)

	out := AnalyzeReportResult{
		Path:           analysis.Path,
		Provider:       analysis.Provider,
		FallbackReason: analysis.FallbackReason,
		Cached:         analysis.Cached,
		InputChars:     rec.InputChars,
		Result:         analysis.Result,
	}

	if s.history != nil {
		if err := s.history.Save(ctx, rec); err != nil {
			s.logger.WithFields(logrus.Fields{
				"tool":  "analyze_report",
				"error": logging.SanitizeError(err),
			}).Warn("Failed to store analysis history")
		} else {
			out.ID = rec.ID
		}
	}

	return nil, out, nil
}

func (s *Server) handleReferenceRange(_ context.Context, _ *mcp.CallToolRequest, in ReferenceRangeParams) (*mcp.CallToolResult, any, error) {
	ranges := service.ReferenceRanges()

	marker := strings.TrimSpace(in.Marker)
	if marker == "" {
		return nil, ReferenceRangeResult{Ranges: ranges}, nil
	}

	for _, r := range ranges {
		if strings.EqualFold(r.Marker, marker) {
			return nil, ReferenceRangeResult{Ranges: []domain.ReferenceRange{r}}, nil
		}
	}
	return nil, nil, fmt.Errorf("unknown marker %q", in.Marker)
}

func (s *Server) handleListAnalyses(ctx context.Context, _ *mcp.CallToolRequest, in ListAnalysesParams) (*mcp.CallToolResult, any, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}

	records, err := s.history.List(ctx, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("listing analyses: %w", err)
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("counting analyses: %w", err)
	}
	if records == nil {
		records = []*history.Record{}
	}

	return nil, ListAnalysesResult{Records: records, Total: total}, nil
}

func (s *Server) handleGetAnalysis(ctx context.Context, _ *mcp.CallToolRequest, in GetAnalysisParams) (*mcp.CallToolResult, any, error) {
	rec, err := s.history.Get(ctx, in.ID)
	if err != nil {
		return nil, nil, err
	}
	return nil, rec, nil
}
