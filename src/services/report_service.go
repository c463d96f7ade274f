package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lynardsalingujay/lynardme-datafeed/src/logger"
	"github.com/lynardsalingujay/lynardme-datafeed/src/marketdata"
	"github.com/lynardsalingujay/lynardme-datafeed/src/matching"
	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
	"github.com/lynardsalingujay/lynardme-datafeed/src/performance"
	"github.com/lynardsalingujay/lynardme-datafeed/src/reconciliation"
	"github.com/lynardsalingujay/lynardme-datafeed/src/store"
)

const (
	ckTradeReport          = "res_trade_report_%s_%s_%s"
	ckReconciliationReport = "res_reconciliation_report_%s_%s_%v"
)

type reportServiceImpl struct {
	store      store.RecordStore
	marketData marketdata.Client
	matcherCfg matching.Config
	recCfg     reconciliation.Config
	aggregator *performance.Aggregator
	cache      *cache.Cache
}

func NewReportService(
	recordStore store.RecordStore,
	marketData marketdata.Client,
	matcherCfg matching.Config,
	recCfg reconciliation.Config,
	reportCache *cache.Cache,
) ReportService {
	return &reportServiceImpl{
		store:      recordStore,
		marketData: marketData,
		matcherCfg: matcherCfg,
		recCfg:     recCfg,
		aggregator: performance.NewAggregator(),
		cache:      reportCache,
	}
}

func (s *reportServiceImpl) TradeReport(scope store.Scope, asOf time.Time, groupBy []string) (*TradeReport, error) {
	cacheKey := fmt.Sprintf(ckTradeReport, scopeKey(scope), asOf.Format("2006-01-02"), strings.Join(groupBy, ","))
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.(*TradeReport), nil
	}

	txs, err := s.store.FetchTransactions(scope, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	// Fresh matcher per run: a consumed matcher is never reusable.
	matcher := matching.NewTradeMatcher(s.matcherCfg)
	result, err := matcher.Match(txs)
	if err != nil {
		return nil, err
	}
	if len(result.Unmatched) > 0 {
		logger.L.Warn("trade report has unmatched transactions", "count", len(result.Unmatched))
	}

	var interest []models.Transaction
	for _, tx := range txs {
		if tx.AssetType == models.Cash && tx.TransactionType == models.Interest {
			interest = append(interest, tx)
		}
	}

	report := &TradeReport{
		Summary:   s.aggregator.TradeSummary(result.Rows, interest, groupBy),
		Rows:      result.Rows,
		Unmatched: result.Unmatched,
	}
	s.cache.Set(cacheKey, report, cache.DefaultExpiration)
	return report, nil
}

func (s *reportServiceImpl) ReconciliationReport(scope store.Scope, asOf time.Time, opts reconciliation.Options) ([]reconciliation.Row, error) {
	cacheKey := fmt.Sprintf(ckReconciliationReport, scopeKey(scope), asOf.Format("2006-01-02"), opts)
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.([]reconciliation.Row), nil
	}

	movements, err := s.store.FetchCashMovements(scope, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	txs, err := s.store.FetchTransactions(scope, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	positions, err := s.store.FetchPositions(scope, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	rows, err := reconciliation.NewReconciler(s.recCfg).CashRecSummary(asOf, opts, movements, txs, positions)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, rows, cache.DefaultExpiration)
	return rows, nil
}

func (s *reportServiceImpl) ValuationReport(ctx context.Context, scope store.Scope, asOf time.Time) ([]performance.ValuationRow, error) {
	positions, err := s.store.FetchPositions(scope, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	marks, err := s.fetchMarks(ctx, positions)
	if err != nil {
		return nil, err
	}
	return s.aggregator.Valuation(positions, marks), nil
}

func (s *reportServiceImpl) RiskReport(ctx context.Context, scope store.Scope, asOf time.Time) ([]performance.RiskRow, error) {
	positions, err := s.store.FetchPositions(scope, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	marks, err := s.fetchMarks(ctx, positions)
	if err != nil {
		return nil, err
	}
	return s.aggregator.RiskReport(positions, marks), nil
}

// fetchMarks quotes every distinct symbol and currency in the snapshot.
// FxRates holds currency units per GBP, the shape the valuation divides by.
func (s *reportServiceImpl) fetchMarks(ctx context.Context, positions []models.Position) (performance.Marks, error) {
	marks := performance.Marks{
		Prices:  make(map[string]float64),
		FxRates: make(map[string]float64),
	}
	for _, p := range positions {
		if p.AssetType != models.Cash {
			if _, done := marks.Prices[p.Symbol]; !done {
				price, err := s.marketData.LatestPrice(ctx, p.Symbol)
				if err != nil {
					return marks, fmt.Errorf("marking %s: %w", p.Symbol, err)
				}
				marks.Prices[p.Symbol] = price
			}
		}
		if _, done := marks.FxRates[p.Currency]; !done {
			rate, err := s.marketData.GBPRate(ctx, p.Currency)
			if err != nil {
				return marks, fmt.Errorf("fx rate for %s: %w", p.Currency, err)
			}
			if rate == 0 {
				return marks, fmt.Errorf("zero GBP rate for %s", p.Currency)
			}
			marks.FxRates[p.Currency] = 1 / rate
		}
	}
	return marks, nil
}

func (s *reportServiceImpl) InvalidateCache() {
	s.cache.Flush()
	logger.L.Debug("report cache flushed")
}

func scopeKey(scope store.Scope) string {
	return string(scope.Custodian) + "/" + string(scope.Owner) + "/" + string(scope.Group)
}
