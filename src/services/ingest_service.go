package services

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/lynardsalingujay/lynardme-datafeed/src/logger"
	"github.com/lynardsalingujay/lynardme-datafeed/src/parsers"
	"github.com/lynardsalingujay/lynardme-datafeed/src/store"
)

type ingestServiceImpl struct {
	store   store.RecordStore
	reports ReportService
}

func NewIngestService(recordStore store.RecordStore, reports ReportService) IngestService {
	return &ingestServiceImpl{
		store:   recordStore,
		reports: reports,
	}
}

func (s *ingestServiceImpl) ProcessUpload(fileReader io.Reader, source, kind string) (*IngestResult, error) {
	startTime := time.Now()
	batchID := uuid.NewString()
	logger.L.Info("ProcessUpload START", "batchID", batchID, "source", source, "kind", kind)

	parser, err := parsers.GetParser(source, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	statement, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	result := &IngestResult{
		BatchID: batchID,
		Source:  source,
		Kind:    kind,
	}

	if len(statement.Transactions) > 0 {
		n, err := s.store.UpsertTransactions(statement.Transactions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
		result.Transactions = n
	}
	if len(statement.CashMovements) > 0 {
		n, err := s.store.UpsertCashMovements(statement.CashMovements)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
		result.CashMovements = n
	}
	if len(statement.Positions) > 0 {
		n, err := s.store.UpsertPositions(statement.Positions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
		result.Positions = n
	}

	// Any cached report may now be stale. The next request recomputes.
	if s.reports != nil {
		s.reports.InvalidateCache()
	}

	logger.L.Info("ProcessUpload END", "batchID", batchID,
		"transactions", result.Transactions, "cashMovements", result.CashMovements,
		"positions", result.Positions, "duration", time.Since(startTime))
	return result, nil
}
