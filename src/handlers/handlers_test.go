package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynardsalingujay/lynardme-datafeed/src/config"
	"github.com/lynardsalingujay/lynardme-datafeed/src/logger"
	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
	"github.com/lynardsalingujay/lynardme-datafeed/src/performance"
	"github.com/lynardsalingujay/lynardme-datafeed/src/reconciliation"
	"github.com/lynardsalingujay/lynardme-datafeed/src/services"
	"github.com/lynardsalingujay/lynardme-datafeed/src/store"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{MaxUploadSizeBytes: 1 << 20}
	os.Exit(m.Run())
}

type stubReportService struct {
	err        error
	riskCalled bool
}

func (s *stubReportService) TradeReport(store.Scope, time.Time, []string) (*services.TradeReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.TradeReport{}, nil
}

func (s *stubReportService) ReconciliationReport(store.Scope, time.Time, reconciliation.Options) ([]reconciliation.Row, error) {
	return nil, s.err
}

func (s *stubReportService) ValuationReport(context.Context, store.Scope, time.Time) ([]performance.ValuationRow, error) {
	return []performance.ValuationRow{{AssetType: "total_value"}}, s.err
}

func (s *stubReportService) RiskReport(context.Context, store.Scope, time.Time) ([]performance.RiskRow, error) {
	s.riskCalled = true
	return []performance.RiskRow{}, s.err
}

func (s *stubReportService) InvalidateCache() {}

func TestHandleTradeReport_BadAsOfDateRejected(t *testing.T) {
	h := NewReportHandler(&stubReportService{})
	req := httptest.NewRequest(http.MethodGet, "/api/reports/trades?as_of=30-11-2019", nil)
	rec := httptest.NewRecorder()

	h.HandleTradeReport(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid as_of date")
}

func TestHandleTradeReport_DataProblemsAre422(t *testing.T) {
	h := NewReportHandler(&stubReportService{err: &models.MatchingAmbiguityError{UniqueKeys: []string{"k1"}}})
	req := httptest.NewRequest(http.MethodGet, "/api/reports/trades?as_of=2019-11-30", nil)
	rec := httptest.NewRecorder()

	h.HandleTradeReport(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "unmatched trades are the uploader's data problem, not ours")
}

func TestHandleTradeReport_InfrastructureFailuresAre500(t *testing.T) {
	h := NewReportHandler(&stubReportService{err: fmt.Errorf("db gone")})
	req := httptest.NewRequest(http.MethodGet, "/api/reports/trades?as_of=2019-11-30", nil)
	rec := httptest.NewRecorder()

	h.HandleTradeReport(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db gone", "internal detail stays out of the response")
}

func TestHandleReconciliationReport_EmptyResultIsAnEmptyArray(t *testing.T) {
	h := NewReportHandler(&stubReportService{})
	req := httptest.NewRequest(http.MethodGet, "/api/reports/reconciliation?as_of=2019-11-30", nil)
	rec := httptest.NewRecorder()

	h.HandleReconciliationReport(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandleReconciliationReport_GapIs422(t *testing.T) {
	asOf := time.Date(2019, time.November, 30, 0, 0, 0, 0, time.UTC)
	h := NewReportHandler(&stubReportService{err: &models.ReconciliationGapError{AsOf: asOf}})
	req := httptest.NewRequest(http.MethodGet, "/api/reports/reconciliation?as_of=2019-11-30", nil)
	rec := httptest.NewRecorder()

	h.HandleReconciliationReport(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleValuationReport_LTVQuerySwitchesToRisk(t *testing.T) {
	stub := &stubReportService{}
	h := NewReportHandler(stub)
	req := httptest.NewRequest(http.MethodGet, "/api/reports/valuation?as_of=2019-11-30&ltv=true", nil)
	rec := httptest.NewRecorder()

	h.HandleValuationReport(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, stub.riskCalled)
}

type stubIngestService struct {
	err    error
	source string
	kind   string
}

func (s *stubIngestService) ProcessUpload(file io.Reader, source, kind string) (*services.IngestResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.source = source
	s.kind = kind
	return &services.IngestResult{BatchID: "batch-1", Source: source, Kind: kind, Transactions: 2}, nil
}

func multipartUpload(t *testing.T, kind, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if kind != "" {
		require.NoError(t, writer.WriteField("kind", kind))
	}
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHandleIngest_UploadsStatement(t *testing.T) {
	stub := &stubIngestService{}
	h := NewIngestHandler(stub)

	body, contentType := multipartUpload(t, "trades", "trades.csv", "Time,Side\n")
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/exante", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("source", "exante")
	rec := httptest.NewRecorder()

	h.HandleIngest(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exante", stub.source)
	assert.Equal(t, "trades", stub.kind)

	var result services.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "batch-1", result.BatchID)
	assert.Equal(t, 2, result.Transactions)
}

func TestHandleIngest_MissingKindRejected(t *testing.T) {
	h := NewIngestHandler(&stubIngestService{})

	body, contentType := multipartUpload(t, "", "trades.csv", "Time,Side\n")
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/exante", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("source", "exante")
	rec := httptest.NewRecorder()

	h.HandleIngest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "kind")
}

func TestHandleIngest_ParsingFailureIs400(t *testing.T) {
	h := NewIngestHandler(&stubIngestService{err: fmt.Errorf("%w: missing column", services.ErrParsingFailed)})

	body, contentType := multipartUpload(t, "trades", "trades.csv", "garbage")
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/exante", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("source", "exante")
	rec := httptest.NewRecorder()

	h.HandleIngest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "parsing")
}
