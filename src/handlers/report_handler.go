package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lynardsalingujay/lynardme-datafeed/src/logger"
	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
	"github.com/lynardsalingujay/lynardme-datafeed/src/reconciliation"
	"github.com/lynardsalingujay/lynardme-datafeed/src/services"
	"github.com/lynardsalingujay/lynardme-datafeed/src/store"
	"github.com/lynardsalingujay/lynardme-datafeed/src/utils"
)

type ReportHandler struct {
	reportService services.ReportService
}

func NewReportHandler(service services.ReportService) *ReportHandler {
	return &ReportHandler{
		reportService: service,
	}
}

func (h *ReportHandler) HandleTradeReport(w http.ResponseWriter, r *http.Request) {
	scope := parseScope(r)
	asOf, err := parseAsOf(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var groupBy []string
	if raw := r.URL.Query().Get("group_by"); raw != "" {
		groupBy = strings.Split(raw, ",")
	}

	report, err := h.reportService.TradeReport(scope, asOf, groupBy)
	if err != nil {
		sendReportError(w, "trade report", err)
		return
	}
	writeJSON(w, report)
}

func (h *ReportHandler) HandleReconciliationReport(w http.ResponseWriter, r *http.Request) {
	scope := parseScope(r)
	asOf, err := parseAsOf(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	opts := reconciliation.Options{
		ErrorsOnly:     query.Get("errors_only") == "true",
		ExcludeFutures: query.Get("exclude_futures") == "true",
	}
	if raw := query.Get("group_by"); raw != "" {
		opts.GroupBy = strings.Split(raw, ",")
	}

	rows, err := h.reportService.ReconciliationReport(scope, asOf, opts)
	if err != nil {
		sendReportError(w, "reconciliation report", err)
		return
	}
	if rows == nil {
		rows = []reconciliation.Row{}
	}
	writeJSON(w, rows)
}

func (h *ReportHandler) HandleValuationReport(w http.ResponseWriter, r *http.Request) {
	scope := parseScope(r)
	asOf, err := parseAsOf(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("ltv") == "true" {
		rows, err := h.reportService.RiskReport(r.Context(), scope, asOf)
		if err != nil {
			sendReportError(w, "risk report", err)
			return
		}
		writeJSON(w, rows)
		return
	}

	rows, err := h.reportService.ValuationReport(r.Context(), scope, asOf)
	if err != nil {
		sendReportError(w, "valuation report", err)
		return
	}
	writeJSON(w, rows)
}

func parseScope(r *http.Request) store.Scope {
	query := r.URL.Query()
	return store.Scope{
		Custodian: models.Custodian(query.Get("custodian")),
		Owner:     models.Owner(query.Get("owner")),
		Group:     models.Group(query.Get("group")),
	}
}

func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	asOf, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid as_of date %q, want YYYY-MM-DD", raw)
	}
	return asOf, nil
}

// sendReportError distinguishes data problems (unclassifiable descriptions,
// unmatched trades, statement gaps) from infrastructure failures. Data
// problems are the caller's to resolve by uploading the missing statements.
func sendReportError(w http.ResponseWriter, report string, err error) {
	var classificationErr *models.ClassificationError
	var matchingErr *models.MatchingAmbiguityError
	var gapErr *models.ReconciliationGapError
	switch {
	case errors.As(err, &classificationErr), errors.As(err, &matchingErr), errors.As(err, &gapErr):
		logger.L.Warn("Report blocked by data problem", "report", report, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.L.Error("Report computation failed", "report", report, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("An internal error occurred computing the %s.", report), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("Error encoding JSON response", "error", err)
	}
}
