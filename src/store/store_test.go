package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynardsalingujay/lynardme-datafeed/src/database"
	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

// newTestStore opens a fresh in-memory record database. Each sql connection
// gets its own :memory: database, so the pool is pinned to one connection.
func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	database.InitDB(":memory:")
	database.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { database.DB.Close() })
	return NewSQLStore(database.DB)
}

func tx(uniqueKey string, at time.Time, net float64) models.Transaction {
	return models.Transaction{
		Custodian:           models.Exante,
		Owner:               models.Alex,
		Group:               models.GroupShiny,
		TransactionTime:     at,
		ValueDate:           at,
		Symbol:              "ESZ19",
		AssetName:           "ES Z19",
		Currency:            "USD",
		TransactionType:     models.Buy,
		AssetType:           models.IndexFuture,
		Price:               3000,
		Quantity:            1,
		NetTransactionValue: net,
		UniqueKey:           uniqueKey,
	}
}

func TestUpsertTransactions_ReuploadUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2019, time.November, 5, 14, 30, 0, 0, time.UTC)

	n, err := s.UpsertTransactions([]models.Transaction{
		tx("exante-1", at, 100000),
		tx("exante-2", at.Add(time.Hour), 200000),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// same unique key with corrected figures must replace, not duplicate
	amended := tx("exante-1", at, 105000)
	_, err = s.UpsertTransactions([]models.Transaction{amended})
	require.NoError(t, err)

	got, err := s.FetchTransactions(Scope{}, at.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exante-1", got[0].UniqueKey)
	assert.InDelta(t, 105000, got[0].NetTransactionValue, 1e-9)
}

func TestUpsertTransactions_BlankUniqueKeysNeverCollide(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2019, time.November, 5, 0, 0, 0, 0, time.UTC)

	_, err := s.UpsertTransactions([]models.Transaction{
		tx("", at, 100),
		tx("", at, 200),
	})
	require.NoError(t, err)

	got, err := s.FetchTransactions(Scope{}, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2, "rows without a unique key are inserted as NULL and stay independent")
}

func TestFetchTransactions_OrderedAndCutOffAtAsOf(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2019, time.November, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.UpsertTransactions([]models.Transaction{
		tx("k3", base.AddDate(0, 0, 10), 3),
		tx("k1", base, 1),
		tx("k2", base.AddDate(0, 0, 5), 2),
	})
	require.NoError(t, err)

	got, err := s.FetchTransactions(Scope{}, base.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "k1", got[0].UniqueKey)
	assert.Equal(t, "k2", got[1].UniqueKey)
	assert.Equal(t, base, got[0].TransactionTime)
}

func TestFetchTransactions_ScopeFilters(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2019, time.November, 5, 0, 0, 0, 0, time.UTC)

	other := tx("reyl-1", at, 50)
	other.Custodian = models.Reyl
	other.Owner = models.MidPacificAM
	other.Group = models.GroupMFT

	_, err := s.UpsertTransactions([]models.Transaction{tx("exante-1", at, 10), other})
	require.NoError(t, err)

	got, err := s.FetchTransactions(Scope{Custodian: models.Exante}, at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "exante-1", got[0].UniqueKey)

	got, err = s.FetchTransactions(Scope{Owner: models.MidPacificAM, Group: models.GroupMFT}, at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "reyl-1", got[0].UniqueKey)

	got, err = s.FetchTransactions(Scope{}, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2, "an empty scope matches every record")
}

func TestCashMovements_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2019, time.November, 5, 0, 0, 0, 0, time.UTC)

	movement := models.CashMovement{
		Custodian:       models.Reyl,
		Owner:           models.MidPacificAM,
		Group:           models.GroupMFT,
		TransactionDate: at,
		ValueDate:       at.AddDate(0, 0, 2),
		DebitAmount:     100000,
		Balance:         -100000,
		Description:     "Subscr. American Growth Fund",
		Currency:        "GBP",
		UniqueKey:       "reyl-cm-1",
	}
	_, err := s.UpsertCashMovements([]models.CashMovement{movement})
	require.NoError(t, err)

	got, err := s.FetchCashMovements(Scope{Group: models.GroupMFT}, at.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, movement, got[0])
}

func TestPositions_RoundTripAndAsOfCutoff(t *testing.T) {
	s := newTestStore(t)
	early := time.Date(2019, time.October, 31, 0, 0, 0, 0, time.UTC)
	late := time.Date(2019, time.November, 30, 0, 0, 0, 0, time.UTC)

	_, err := s.UpsertPositions([]models.Position{
		{Custodian: models.Reyl, Owner: models.MidPacificAM, Group: models.GroupMFT,
			AsOfDate: late, Symbol: "GBP", Currency: "GBP", AssetType: models.Cash, Quantity: 5000, UniqueKey: "p-late"},
		{Custodian: models.Reyl, Owner: models.MidPacificAM, Group: models.GroupMFT,
			AsOfDate: early, Symbol: "GBP", Currency: "GBP", AssetType: models.Cash, Quantity: 4000, UniqueKey: "p-early"},
	})
	require.NoError(t, err)

	got, err := s.FetchPositions(Scope{}, early)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-early", got[0].UniqueKey)
	assert.True(t, got[0].ValueDate.IsZero(), "a snapshot without a value date round-trips as zero")

	got, err = s.FetchPositions(Scope{}, late)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p-early", got[0].UniqueKey)
	assert.Equal(t, "p-late", got[1].UniqueKey)
}
