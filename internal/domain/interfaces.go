package domain

import (
	"context"
)

// ReportAnalyzer turns extracted report text into a structured analysis.
// Implementations never fail: every call yields a usable result.
type ReportAnalyzer interface {
	AnalyzeReportText(ctx context.Context, text string) *Analysis
}

// TextExtractor pulls plain text out of an uploaded document.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetReasoningConfig() *ReasoningConfig
	GetHistoryConfig() *HistoryConfig
	Validate() error
}
