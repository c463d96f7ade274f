package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/lynardsalingujay/lynardme-datafeed/src/matching"
	"github.com/lynardsalingujay/lynardme-datafeed/src/performance"
	"github.com/lynardsalingujay/lynardme-datafeed/src/reconciliation"
	"github.com/lynardsalingujay/lynardme-datafeed/src/store"
)

var (
	ErrParsingFailed = errors.New("statement parsing failed")
	ErrStoreFailed   = errors.New("record store operation failed")
)

// IngestResult reports what one statement upload produced.
type IngestResult struct {
	BatchID       string `json:"batch_id"`
	Source        string `json:"source"`
	Kind          string `json:"kind"`
	Transactions  int    `json:"transactions"`
	CashMovements int    `json:"cash_movements"`
	Positions     int    `json:"positions"`
}

// IngestService turns uploaded statement files into stored canonical records.
// Re-uploading the same statement is safe: records carry upsert keys.
type IngestService interface {
	ProcessUpload(fileReader io.Reader, source, kind string) (*IngestResult, error)
}

// TradeReport is the matched transaction set with its performance summary.
type TradeReport struct {
	Summary   []performance.SummaryRow      `json:"summary"`
	Rows      []matching.MatchedTransaction `json:"rows"`
	Unmatched []matching.MatchedTransaction `json:"unmatched,omitempty"`
}

// ReportService computes the reporting surfaces. Every report run builds a
// fresh matcher; match state never leaks between runs.
type ReportService interface {
	TradeReport(scope store.Scope, asOf time.Time, groupBy []string) (*TradeReport, error)
	ReconciliationReport(scope store.Scope, asOf time.Time, opts reconciliation.Options) ([]reconciliation.Row, error)
	ValuationReport(ctx context.Context, scope store.Scope, asOf time.Time) ([]performance.ValuationRow, error)
	RiskReport(ctx context.Context, scope store.Scope, asOf time.Time) ([]performance.RiskRow, error)
	InvalidateCache()
}
