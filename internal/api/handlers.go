package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/history"
	"github.com/medreport-analyzer/internal/logging"
	"github.com/medreport-analyzer/internal/middleware"
	"github.com/medreport-analyzer/internal/service"
)

// analyzeRequest is the body of POST /api/v1/analyze. Text is a pointer so
// a missing field can be told apart from an empty report.
type analyzeRequest struct {
	Text   *string `json:"text"`
	Source string  `json:"source"`
}

// analysisResponse wraps an analysis with its history id, when stored.
type analysisResponse struct {
	ID         string           `json:"id,omitempty"`
	Source     string           `json:"source,omitempty"`
	InputChars int              `json:"input_chars"`
	Analysis   *domain.Analysis `json:"analysis"`
}

type listResponse struct {
	Records []*history.Record `json:"records"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

func (s *Server) handleHealth(c *gin.Context) {
	historyStatus := "disabled"
	if s.history != nil {
		historyStatus = "enabled"
	}

	provider := s.analyzer.ProviderName()
	if provider == "" {
		provider = "none"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"reasoning": gin.H{
			"enabled":  s.analyzer.ExternalEnabled(),
			"provider": provider,
		},
		"history": historyStatus,
	})
}

func (s *Server) handleReferenceRanges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ranges": service.ReferenceRanges()})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes(s.config.Server))

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isMaxBytesError(err) {
			respondError(c, http.StatusRequestEntityTooLarge,
				domain.NewAnalysisError(domain.ErrFileTooLarge, "Request body is too large", "", ""))
			return
		}
		respondError(c, http.StatusBadRequest,
			domain.NewAnalysisError(domain.ErrInvalidInput, "Request body must be a JSON object", logging.SanitizeError(err), ""))
		return
	}
	if req.Text == nil {
		respondError(c, http.StatusBadRequest,
			domain.NewAnalysisError(domain.ErrInvalidInput, "Field 'text' is required", "", ""))
		return
	}

	s.analyzeAndRespond(c, req.Source, *req.Text)
}

func (s *Server) handleUpload(c *gin.Context) {
	maxBytes := maxUploadBytes(s.config.Server)
	// room for multipart framing around the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1024*1024)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if isMaxBytesError(err) {
			s.metrics.RecordUpload(domain.ErrFileTooLarge)
			respondError(c, http.StatusRequestEntityTooLarge,
				domain.NewAnalysisError(domain.ErrFileTooLarge, fmt.Sprintf("File must be under %d MB.", maxBytes/(1024*1024)), "", ""))
			return
		}
		s.metrics.RecordUpload(domain.ErrInvalidInput)
		respondError(c, http.StatusBadRequest,
			domain.NewAnalysisError(domain.ErrInvalidInput, "A multipart 'file' field is required", logging.SanitizeError(err), ""))
		return
	}

	if err := service.ValidateUpload(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), fileHeader.Size, maxBytes); err != nil {
		s.rejectUpload(c, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.rejectUpload(c, domain.NewAnalysisError(domain.ErrExtraction, "Failed to read the uploaded file", err.Error(), ""))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		s.rejectUpload(c, domain.NewAnalysisError(domain.ErrExtraction, "Failed to read the uploaded file", err.Error(), ""))
		return
	}

	text, err := s.intake.ExtractText(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		s.rejectUpload(c, err)
		return
	}

	s.metrics.RecordUpload("accepted")
	s.analyzeAndRespond(c, fileHeader.Filename, text)
}

func (s *Server) rejectUpload(c *gin.Context, err error) {
	code := domain.ErrInternalServer
	var ae *domain.AnalysisError
	if errors.As(err, &ae) {
		code = ae.Code
	}
	s.metrics.RecordUpload(code)
	respondWithError(c, err)
}

// analyzeAndRespond runs the analyzer and stores the result when history is
// enabled. A history failure is logged but never fails the request.
func (s *Server) analyzeAndRespond(c *gin.Context, source, text string) {
	analysis := s.analyzer.AnalyzeReportText(c.Request.Context(), text)

	resp := analysisResponse{
		Source:   source,
		Analysis: analysis,
	}

	rec := history.NewRecord(source, text, analysis)
	resp.InputChars = rec.InputChars

	if s.history != nil {
		if err := s.history.Save(c.Request.Context(), rec); err != nil {
			s.logger.WithFields(logrus.Fields{
				"correlation_id": c.GetString(middleware.CorrelationIDKey),
				"error":          logging.SanitizeError(err),
			}).Warn("Failed to store analysis history")
		} else {
			resp.ID = rec.ID
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) requireHistory(c *gin.Context) bool {
	if s.history == nil {
		respondError(c, http.StatusServiceUnavailable,
			domain.NewAnalysisError(domain.ErrStorage, "Analysis history is disabled", "", ""))
		return false
	}
	return true
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	limit, err := queryInt(c, "limit", 50)
	if err != nil || limit < 1 || limit > 500 {
		respondError(c, http.StatusBadRequest,
			domain.NewAnalysisError(domain.ErrInvalidInput, "limit must be between 1 and 500", "", ""))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		respondError(c, http.StatusBadRequest,
			domain.NewAnalysisError(domain.ErrInvalidInput, "offset must be zero or positive", "", ""))
		return
	}

	ctx := c.Request.Context()
	records, err := s.history.List(ctx, limit, offset)
	if err != nil {
		s.storageFailure(c, err)
		return
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		s.storageFailure(c, err)
		return
	}
	if records == nil {
		records = []*history.Record{}
	}

	c.JSON(http.StatusOK, listResponse{Records: records, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	rec, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storageFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteAnalysis(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	if err := s.history.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.storageFailure(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) storageFailure(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrRecordNotFound) {
		respondError(c, http.StatusNotFound,
			domain.NewAnalysisError(domain.ErrNotFound, "Analysis not found", c.Param("id"), ""))
		return
	}
	s.logger.WithFields(logrus.Fields{
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
		"error":          logging.SanitizeError(err),
	}).Error("History storage failed")
	respondError(c, http.StatusInternalServerError,
		domain.NewAnalysisError(domain.ErrStorage, "Analysis history is unavailable", "", ""))
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
