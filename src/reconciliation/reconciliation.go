package reconciliation

import (
	"math"
	"sort"
	"time"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

// Grouping columns accepted in Options.GroupBy. Currency is always grouped
// on, whether requested or not.
const (
	ColTransactionDate = "transaction_date"
	ColValueDate       = "value_date"
	ColClassification  = "classification"
	ColCurrency        = "currency"
)

// missing marks a grouping value the source has no column for.
const missing = "*"

// Key is one reconciliation group. Columns outside the requested group-by,
// and columns a leg cannot supply, hold the "*" sentinel.
type Key struct {
	TransactionDate string `json:"transaction_date"`
	ValueDate       string `json:"value_date"`
	Classification  string `json:"classification"`
	Currency        string `json:"currency"`
}

// Row is one grouped three-leg comparison. OK is true when the two legs
// that have data agree within the tolerance.
type Row struct {
	Key
	CashMovement float64 `json:"cash_movement"`
	Transaction  float64 `json:"transaction"`
	Position     float64 `json:"position"`
	OK           bool    `json:"ok"`
}

// Config holds the reconciliation tolerance: legs agree when the absolute
// difference is below one unit of currency by default.
type Config struct {
	Tolerance float64
}

func DefaultConfig() Config {
	return Config{Tolerance: 1}
}

type Options struct {
	GroupBy    []string
	ErrorsOnly bool
	// ExcludeFutures makes margined futures contribute only their fees on
	// the transaction leg (the notional never hits the cash ledger) and
	// drops index-future classification groups from the comparison.
	ExcludeFutures bool
}

// Reconciler cross-checks the three independently sourced views of the same
// economic events. It holds no per-run state and is safe to reuse.
type Reconciler struct {
	cfg Config
}

func NewReconciler(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg}
}

// CashRecSummary aggregates each leg by the grouping key, outer-joins the
// sums and flags groups where the populated legs disagree. A leg with no
// records is legitimate (a scope may simply have no positions recorded);
// all three legs populated at once is a ReconciliationGapError.
func (r *Reconciler) CashRecSummary(asOf time.Time, opts Options,
	movements []models.CashMovement, txs []models.Transaction, positions []models.Position) ([]Row, error) {

	groupBy := append([]string{}, opts.GroupBy...)
	if !contains(groupBy, ColCurrency) {
		groupBy = append(groupBy, ColCurrency)
	}

	cash, err := cashMovementSummary(movements, asOf, groupBy)
	if err != nil {
		return nil, err
	}
	tx := transactionSummary(txs, asOf, groupBy, opts.ExcludeFutures)
	pos := positionSummary(positions, asOf, groupBy)

	if len(cash) > 0 && len(tx) > 0 && len(pos) > 0 {
		return nil, &models.ReconciliationGapError{AsOf: asOf}
	}

	rows := mergeLegs(cash, tx, pos)
	if opts.ExcludeFutures {
		rows = reject(rows, func(row Row) bool {
			return row.Classification == string(models.ClassIndexFuture)
		})
	}

	for i := range rows {
		var diff float64
		switch {
		case len(cash) == 0:
			diff = rows[i].Position - rows[i].Transaction
		case len(tx) == 0:
			diff = rows[i].CashMovement - rows[i].Position
		default:
			diff = rows[i].CashMovement - rows[i].Transaction
		}
		rows[i].OK = math.Abs(diff) < r.cfg.Tolerance
	}

	if opts.ErrorsOnly {
		rows = reject(rows, func(row Row) bool { return row.OK })
	}
	return rows, nil
}

func cashMovementSummary(movements []models.CashMovement, asOf time.Time, groupBy []string) (map[Key]float64, error) {
	sums := make(map[Key]float64)
	for _, m := range movements {
		if !m.TransactionDate.Before(asOf) {
			continue
		}
		class, err := m.Classify()
		if err != nil {
			return nil, err
		}
		key := buildKey(groupBy, day(m.TransactionDate), day(m.ValueDate), string(class), m.Currency)
		sums[key] += m.Amount()
	}
	return sums, nil
}

func transactionSummary(txs []models.Transaction, asOf time.Time, groupBy []string, excludeFutures bool) map[Key]float64 {
	sums := make(map[Key]float64)
	add := func(t models.Transaction, class models.Classification, currency string, value float64) {
		key := buildKey(groupBy, day(t.TransactionTime), day(t.ValueDate), string(class), currency)
		sums[key] += value
	}
	for _, t := range txs {
		if t.TransactionTime.After(endOfDay(asOf)) {
			continue
		}
		switch t.AssetType {
		case models.IndexFuture, models.FxFuture:
			// margined: only fees create a cash-visible leg
			value := -t.NetTransactionValue
			if excludeFutures {
				value = t.DirectFee + t.IndirectFee
			}
			add(t, models.Classification(t.AssetType), t.Currency, value)
		case models.Fund, models.FxSpot, models.FxForward:
			add(t, models.Classification(t.AssetType), t.Currency, -t.NetTransactionValue)
			// one FX record is economically two currency legs; synthesize
			// the counter leg in the symbol's base currency
			if (t.AssetType == models.FxSpot || t.AssetType == models.FxForward) && len(t.Symbol) >= 3 {
				add(t, models.Classification(t.AssetType), t.Symbol[:3], t.Quantity)
			}
		case models.Cash:
			switch t.TransactionType {
			case models.Interest, models.Dividend, models.Transfer, models.Fee:
				add(t, models.Classification(t.TransactionType), t.Currency, t.NetTransactionValue)
			}
		}
	}
	return sums
}

func positionSummary(positions []models.Position, asOf time.Time, groupBy []string) map[Key]float64 {
	sums := make(map[Key]float64)
	for _, p := range positions {
		if day(p.AsOfDate) != day(asOf) || p.AssetType != models.Cash {
			continue
		}
		valueDate := missing
		if !p.ValueDate.IsZero() {
			valueDate = day(p.ValueDate)
		}
		key := buildKey(groupBy, missing, valueDate, missing, p.Currency)
		sums[key] += p.Quantity
	}
	return sums
}

func mergeLegs(cash, tx, pos map[Key]float64) []Row {
	byKey := make(map[Key]*Row)
	ensure := func(k Key) *Row {
		row, ok := byKey[k]
		if !ok {
			row = &Row{Key: k}
			byKey[k] = row
		}
		return row
	}
	for k, v := range cash {
		ensure(k).CashMovement = v
	}
	for k, v := range tx {
		ensure(k).Transaction = v
	}
	for k, v := range pos {
		ensure(k).Position = v
	}
	rows := make([]Row, 0, len(byKey))
	for _, row := range byKey {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Key, rows[j].Key
		if a.TransactionDate != b.TransactionDate {
			return a.TransactionDate < b.TransactionDate
		}
		if a.ValueDate != b.ValueDate {
			return a.ValueDate < b.ValueDate
		}
		if a.Classification != b.Classification {
			return a.Classification < b.Classification
		}
		return a.Currency < b.Currency
	})
	return rows
}

func buildKey(groupBy []string, transactionDate, valueDate, classification, currency string) Key {
	key := Key{TransactionDate: missing, ValueDate: missing, Classification: missing, Currency: missing}
	for _, col := range groupBy {
		switch col {
		case ColTransactionDate:
			key.TransactionDate = transactionDate
		case ColValueDate:
			key.ValueDate = valueDate
		case ColClassification:
			key.Classification = classification
		case ColCurrency:
			key.Currency = currency
		}
	}
	return key
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

func contains(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}

func reject(rows []Row, drop func(Row) bool) []Row {
	kept := rows[:0]
	for _, row := range rows {
		if !drop(row) {
			kept = append(kept, row)
		}
	}
	return kept
}
