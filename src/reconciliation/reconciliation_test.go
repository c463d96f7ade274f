package reconciliation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

var asOf = time.Date(2019, time.November, 30, 0, 0, 0, 0, time.UTC)

func nov(d int) time.Time {
	return time.Date(2019, time.November, d, 0, 0, 0, 0, time.UTC)
}

func rowByCurrency(t *testing.T, rows []Row, classification, currency string) Row {
	t.Helper()
	for _, row := range rows {
		if row.Classification == classification && row.Currency == currency {
			return row
		}
	}
	t.Fatalf("no row for classification %q currency %q", classification, currency)
	return Row{}
}

func TestCashRecSummary_TwoLegsAgreeWithinTolerance(t *testing.T) {
	movements := []models.CashMovement{
		{TransactionDate: nov(5), ValueDate: nov(7), Description: "Subscr. American Growth Fund", DebitAmount: 100000, Currency: "GBP"},
	}
	txs := []models.Transaction{
		{AssetType: models.Fund, TransactionTime: nov(5), ValueDate: nov(7), Currency: "GBP", NetTransactionValue: 100000},
	}

	rows, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf,
		Options{GroupBy: []string{ColClassification}}, movements, txs, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, string(models.ClassFund), row.Classification)
	assert.Equal(t, "GBP", row.Currency)
	assert.InDelta(t, -100000, row.CashMovement, 1e-9)
	assert.InDelta(t, -100000, row.Transaction, 1e-9)
	assert.True(t, row.OK)
}

func TestCashRecSummary_DisagreementIsFlagged(t *testing.T) {
	movements := []models.CashMovement{
		{TransactionDate: nov(5), ValueDate: nov(7), Description: "Subscr. American Growth Fund", DebitAmount: 99000, Currency: "GBP"},
	}
	txs := []models.Transaction{
		{AssetType: models.Fund, TransactionTime: nov(5), ValueDate: nov(7), Currency: "GBP", NetTransactionValue: 100000},
	}

	reconciler := NewReconciler(DefaultConfig())
	rows, err := reconciler.CashRecSummary(asOf, Options{GroupBy: []string{ColClassification}}, movements, txs, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].OK)

	// errors_only keeps exactly the disagreeing groups
	flagged, err := reconciler.CashRecSummary(asOf,
		Options{GroupBy: []string{ColClassification}, ErrorsOnly: true}, movements, txs, nil)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.False(t, flagged[0].OK)
}

func TestCashRecSummary_AllThreeLegsIsAGap(t *testing.T) {
	movements := []models.CashMovement{
		{TransactionDate: nov(5), ValueDate: nov(5), Description: "Credit interest", CreditAmount: 120, Currency: "GBP"},
	}
	txs := []models.Transaction{
		{AssetType: models.Cash, TransactionType: models.Interest, TransactionTime: nov(5), ValueDate: nov(5), Currency: "GBP", NetTransactionValue: 120},
	}
	positions := []models.Position{
		{AssetType: models.Cash, AsOfDate: asOf, Currency: "GBP", Quantity: 120},
	}

	_, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf, Options{}, movements, txs, positions)
	require.Error(t, err)

	var gapErr *models.ReconciliationGapError
	require.True(t, errors.As(err, &gapErr))
	assert.Equal(t, asOf, gapErr.AsOf)
}

func TestCashRecSummary_PositionsAgainstTransactions(t *testing.T) {
	txs := []models.Transaction{
		{AssetType: models.Cash, TransactionType: models.Interest, TransactionTime: nov(5), ValueDate: nov(5), Currency: "GBP", NetTransactionValue: 500},
	}
	positions := []models.Position{
		{AssetType: models.Cash, AsOfDate: asOf, Currency: "GBP", Quantity: 500},
		// non-cash and stale snapshots never join the cash comparison
		{AssetType: models.Fund, AsOfDate: asOf, Currency: "GBP", Quantity: 9999},
		{AssetType: models.Cash, AsOfDate: nov(15), Currency: "GBP", Quantity: 9999},
	}

	rows, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf, Options{}, nil, txs, positions)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.InDelta(t, 500, row.Position, 1e-9)
	assert.InDelta(t, 500, row.Transaction, 1e-9)
	assert.True(t, row.OK, "position and transaction legs agree without a cash leg")
}

func TestCashRecSummary_FxTransactionSplitsIntoTwoCurrencyLegs(t *testing.T) {
	txs := []models.Transaction{
		{
			AssetType:           models.FxSpot,
			TransactionTime:     nov(5),
			ValueDate:           nov(7),
			Symbol:              "USD/JPY",
			Currency:            "JPY",
			Quantity:            10000,
			NetTransactionValue: -1400000,
		},
	}

	rows, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf,
		Options{GroupBy: []string{ColClassification}}, nil, txs, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	settlement := rowByCurrency(t, rows, string(models.ClassFxSpot), "JPY")
	counter := rowByCurrency(t, rows, string(models.ClassFxSpot), "USD")
	assert.InDelta(t, 1400000, settlement.Transaction, 1e-9)
	assert.InDelta(t, 10000, counter.Transaction, 1e-9)
}

func TestCashRecSummary_ExcludedFuturesContributeOnlyFees(t *testing.T) {
	movements := []models.CashMovement{
		{TransactionDate: nov(5), ValueDate: nov(5), Description: "ajustement marge ES", DebitAmount: 25, Currency: "USD"},
	}
	txs := []models.Transaction{
		{AssetType: models.IndexFuture, TransactionTime: nov(5), ValueDate: nov(5), Currency: "USD",
			DirectFee: -25, NetTransactionValue: 99975},
	}

	rows, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf,
		Options{ExcludeFutures: true}, movements, txs, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.InDelta(t, -25, row.CashMovement, 1e-9)
	assert.InDelta(t, -25, row.Transaction, 1e-9, "margined notional never hits the ledger; only fees compare")
	assert.True(t, row.OK)
}

func TestCashRecSummary_ExcludeFuturesDropsFutureGroups(t *testing.T) {
	txs := []models.Transaction{
		{AssetType: models.IndexFuture, TransactionTime: nov(5), ValueDate: nov(5), Currency: "USD",
			DirectFee: -25, NetTransactionValue: 99975},
		{AssetType: models.Cash, TransactionType: models.Fee, TransactionTime: nov(6), ValueDate: nov(6), Currency: "GBP", NetTransactionValue: -40},
	}

	rows, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf,
		Options{GroupBy: []string{ColClassification}, ExcludeFutures: true}, nil, txs, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1, "the index_future group is dropped from the comparison")
	assert.Equal(t, string(models.ClassFee), rows[0].Classification)
}

func TestCashRecSummary_MovementOnAsOfDayIsExcluded(t *testing.T) {
	movements := []models.CashMovement{
		{TransactionDate: asOf, ValueDate: asOf, Description: "Credit interest", CreditAmount: 120, Currency: "GBP"},
	}

	rows, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf, Options{}, movements, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows, "the cash leg cuts off strictly before the as-of day")
}

func TestCashRecSummary_UnclassifiableMovementFails(t *testing.T) {
	movements := []models.CashMovement{
		{TransactionDate: nov(5), ValueDate: nov(5), Description: "Unrecognized wire 17", CreditAmount: 10, Currency: "GBP"},
	}

	_, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf, Options{}, movements, nil, nil)
	require.Error(t, err)

	var classificationErr *models.ClassificationError
	assert.True(t, errors.As(err, &classificationErr))
}

func TestCashRecSummary_RowsSortDeterministically(t *testing.T) {
	txs := []models.Transaction{
		{AssetType: models.Cash, TransactionType: models.Fee, TransactionTime: nov(8), ValueDate: nov(8), Currency: "USD", NetTransactionValue: -10},
		{AssetType: models.Cash, TransactionType: models.Fee, TransactionTime: nov(3), ValueDate: nov(3), Currency: "GBP", NetTransactionValue: -10},
	}

	rows, err := NewReconciler(DefaultConfig()).CashRecSummary(asOf,
		Options{GroupBy: []string{ColTransactionDate}}, nil, txs, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2019-11-03", rows[0].TransactionDate)
	assert.Equal(t, "2019-11-08", rows[1].TransactionDate)
}
