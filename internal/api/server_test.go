package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/history"
	"github.com/medreport-analyzer/internal/metrics"
	"github.com/medreport-analyzer/internal/service"
	"github.com/medreport-analyzer/pkg/external"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedProvider struct {
	result *domain.AnalysisResult
}

func (p fixedProvider) Name() string { return "fixed:model" }

func (p fixedProvider) Analyze(context.Context, string) external.Outcome {
	return external.Outcome{Kind: external.OutcomeOK, Result: p.result.Clone()}
}

func testConfig() *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			MaxUploadMB: 1,
			RateLimit:   1000,
			RateBurst:   1000,
		},
		Logging: domain.LoggingConfig{Level: "info"},
	}
}

func createTestStore(t *testing.T) history.Store {
	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestServer(t *testing.T, cfg *domain.Config, store history.Store, opts ...service.Option) *Server {
	logger, _ := logtest.NewNullLogger()
	opts = append(opts, service.WithLogger(logger))

	server, err := NewServer(cfg, Dependencies{
		Analyzer: service.NewReportAnalyzer(opts...),
		Intake:   service.NewDocumentIntake(logger),
		History:  store,
		Metrics:  metrics.New(),
		Logger:   logger,
	})
	require.NoError(t, err)
	return server
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func doUpload(t *testing.T, s *Server, filename string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeAnalysis(t *testing.T, w *httptest.ResponseRecorder) analysisResponse {
	var resp analysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Analysis)
	require.NotNil(t, resp.Analysis.Result)
	return resp
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Error domain.AnalysisError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestNewServer_RequiresAnalyzer(t *testing.T) {
	_, err := NewServer(testConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := doJSON(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disabled", body["history"])
	assert.Equal(t, "none", body["reasoning"].(map[string]interface{})["provider"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestReferenceRanges(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := doJSON(s, http.MethodGet, "/api/v1/reference-ranges", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Ranges []domain.ReferenceRange `json:"ranges"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, service.ReferenceRanges(), body.Ranges)
}

func TestAnalyze(t *testing.T) {
	s := newTestServer(t, testConfig(), createTestStore(t))

	w := doJSON(s, http.MethodPost, "/api/v1/analyze", `{"text": "Glucose: 250 mg/dL", "source": "labs"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeAnalysis(t, w)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "labs", resp.Source)
	assert.Equal(t, 18, resp.InputChars)
	assert.Equal(t, domain.PathHeuristic, resp.Analysis.Path)
	require.NotEmpty(t, resp.Analysis.Result.Findings)
	assert.Equal(t, "glucose", resp.Analysis.Result.Findings[0].Label)
	assert.Equal(t, domain.StatusCritical, resp.Analysis.Result.Findings[0].Status)
}

func TestAnalyze_EmptyTextStillAnalyzed(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := doJSON(s, http.MethodPost, "/api/v1/analyze", `{"text": "   "}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeAnalysis(t, w)
	assert.Empty(t, resp.ID, "history disabled")
	assert.NotEmpty(t, resp.Analysis.Result.Findings)
	assert.NotEmpty(t, resp.Analysis.Result.Disclaimer)
}

func TestAnalyze_InvalidInput(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{"source": "labs"}`},
		{"malformed json", `{"text": `},
		{"wrong type", `{"text": 42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(s, http.MethodPost, "/api/v1/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, domain.ErrInvalidInput, errorCode(t, w))
		})
	}
}

func TestAnalyze_ExternalProvider(t *testing.T) {
	result := &domain.AnalysisResult{
		Summary:         "External summary",
		Findings:        []domain.Finding{{Label: "Glucose", Value: "250 mg/dL", Status: domain.StatusCritical}},
		Recommendations: []string{"See your doctor"},
		Disclaimer:      "Not medical advice",
	}
	s := newTestServer(t, testConfig(), nil, service.WithProvider(fixedProvider{result: result}))

	text := strings.Repeat("Glucose: 250 mg/dL. ", 5)
	w := doJSON(s, http.MethodPost, "/api/v1/analyze", `{"text": "`+text+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeAnalysis(t, w)
	assert.Equal(t, domain.PathExternal, resp.Analysis.Path)
	assert.Equal(t, "fixed:model", resp.Analysis.Provider)
	assert.Equal(t, "External summary", resp.Analysis.Result.Summary)
}

func TestUpload(t *testing.T) {
	s := newTestServer(t, testConfig(), createTestStore(t))

	w := doUpload(t, s, "labs.txt", []byte("Hemoglobin: 9.5 g/dL"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeAnalysis(t, w)
	assert.Equal(t, "labs.txt", resp.Source)
	assert.NotEmpty(t, resp.ID)
	require.NotEmpty(t, resp.Analysis.Result.Findings)
	assert.Equal(t, "hemoglobin", resp.Analysis.Result.Findings[0].Label)
}

func TestUpload_PDF(t *testing.T) {
	data, err := os.ReadFile("testdata/labs.pdf")
	require.NoError(t, err)

	s := newTestServer(t, testConfig(), nil)
	w := doUpload(t, s, "labs.pdf", data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeAnalysis(t, w)
	assert.Equal(t, "labs.pdf", resp.Source)
	require.NotEmpty(t, resp.Analysis.Result.Findings)
	assert.Equal(t, "hemoglobin", resp.Analysis.Result.Findings[0].Label)
	assert.Equal(t, domain.StatusCritical, resp.Analysis.Result.Findings[0].Status)
}

func TestUpload_Rejected(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	tests := []struct {
		name     string
		filename string
		content  []byte
		status   int
		code     string
	}{
		{"unsupported type", "program.exe", []byte("MZ"), http.StatusUnsupportedMediaType, domain.ErrUnsupportedFormat},
		{"image without OCR", "scan.png", []byte("\x89PNG"), http.StatusUnsupportedMediaType, domain.ErrUnsupportedFormat},
		{"broken pdf", "scan.pdf", []byte("%PDF-1.4"), http.StatusUnprocessableEntity, domain.ErrExtraction},
		{"too large", "big.txt", bytes.Repeat([]byte("a"), 1024*1024+10), http.StatusRequestEntityTooLarge, domain.ErrFileTooLarge},
		{"broken docx", "report.docx", []byte("not a zip"), http.StatusUnprocessableEntity, domain.ErrExtraction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doUpload(t, s, tt.filename, tt.content)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestUpload_MissingFile(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := doJSON(s, http.MethodPost, "/api/v1/reports", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrInvalidInput, errorCode(t, w))
}

func TestHistoryRoutes(t *testing.T) {
	s := newTestServer(t, testConfig(), createTestStore(t))

	first := decodeAnalysis(t, doJSON(s, http.MethodPost, "/api/v1/analyze", `{"text": "Glucose: 92 mg/dL"}`))
	second := decodeAnalysis(t, doJSON(s, http.MethodPost, "/api/v1/analyze", `{"text": "TSH: 9 mIU/L"}`))

	w := doJSON(s, http.MethodGet, "/api/v1/analyses?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(2), list.Total)
	assert.Len(t, list.Records, 2)
	assert.Equal(t, 10, list.Limit)

	w = doJSON(s, http.MethodGet, "/api/v1/analyses/"+first.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec history.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, first.ID, rec.ID)
	assert.Equal(t, first.Analysis.Result.Findings, rec.Result.Findings)

	w = doJSON(s, http.MethodDelete, "/api/v1/analyses/"+second.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(s, http.MethodGet, "/api/v1/analyses/"+second.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrNotFound, errorCode(t, w))

	w = doJSON(s, http.MethodDelete, "/api/v1/analyses/"+second.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryRoutes_InvalidPaging(t *testing.T) {
	s := newTestServer(t, testConfig(), createTestStore(t))

	for _, query := range []string{"limit=0", "limit=abc", "limit=501", "offset=-1"} {
		w := doJSON(s, http.MethodGet, "/api/v1/analyses?"+query, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestHistoryRoutes_Disabled(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := doJSON(s, http.MethodGet, "/api/v1/analyses", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, domain.ErrStorage, errorCode(t, w))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	doJSON(s, http.MethodPost, "/api/v1/analyze", `{"text": "Glucose: 250 mg/dL"}`)

	w := doJSON(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `medreport_analyses_total{path="heuristic"} 1`)
	assert.Contains(t, w.Body.String(), `http_requests_total`)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = 0.001
	cfg.Server.RateBurst = 1
	s := newTestServer(t, cfg, nil)

	assert.Equal(t, http.StatusOK, doJSON(s, http.MethodPost, "/api/v1/analyze", `{"text": "x"}`).Code)

	w := doJSON(s, http.MethodPost, "/api/v1/analyze", `{"text": "x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, domain.ErrRateLimit, errorCode(t, w))

	// read-only routes are not limited
	assert.Equal(t, http.StatusOK, doJSON(s, http.MethodGet, "/api/v1/reference-ranges", "").Code)
}
