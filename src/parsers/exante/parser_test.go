package exante

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

const tradesCSV = `Time,Side,Symbol ID,Type,Price,Currency,Quantity,Commission,Traded Volume,Order Id,Value date
2019-11-05 14:30:00,buy,USD/GBP.E.FX,FOREX,0.78,GBP,100000,5,78000,ord-1,2019-11-07
2019-11-05 15:00:00,sell,ES.CME.Z2019,FUTURE,3050,USD,-1,2.5,152500,ord-2,2019-11-06
2019-11-06 09:00:00,buy,JPY/USD.E.FX,FX_SPOT,0.0091,USD,1000000,4,9100,ord-3,2019-11-08
2019-11-06 10:00:00,buy,AAPL.NASDAQ,STOCK,250,USD,10,1,2500,ord-4,2019-11-08
not-a-time,buy,USD/GBP.E.FX,FOREX,0.78,GBP,100000,5,78000,ord-5,2019-11-07
`

func TestTradesParser_CanonicalizesInstruments(t *testing.T) {
	txs, err := NewTradesParser().Parse(strings.NewReader(tradesCSV))
	require.NoError(t, err)
	require.Len(t, txs, 3, "the unsupported instrument and the unparseable row are skipped")

	forex := txs[0]
	assert.Equal(t, models.FxSpot, forex.AssetType)
	assert.Equal(t, "GBP/USD", forex.Symbol, "pair legs reorder to the precedence-first form")
	assert.Equal(t, "GBP/USD", forex.AssetName)
	assert.Equal(t, models.Buy, forex.TransactionType)
	assert.Equal(t, time.Date(2019, time.November, 5, 14, 30, 0, 0, time.UTC), forex.TransactionTime)
	assert.Equal(t, time.Date(2019, time.November, 7, 0, 0, 0, 0, time.UTC), forex.ValueDate)
	assert.Equal(t, "ord-1", forex.UniqueKey)

	future := txs[1]
	assert.Equal(t, models.IndexFuture, future.AssetType)
	assert.Equal(t, "ESZ19", future.Symbol)
	assert.Equal(t, "ES Z19", future.AssetName)
	assert.InDelta(t, -1, future.Quantity, 1e-9)

	deliverable := txs[2]
	assert.Equal(t, models.FxFuture, deliverable.AssetType, "deliverable currency futures arrive labelled FX_SPOT")
	assert.Equal(t, "USD/JPY", deliverable.Symbol)
}

func TestTradesParser_FeesReduceNetValue(t *testing.T) {
	txs, err := NewTradesParser().Parse(strings.NewReader(tradesCSV))
	require.NoError(t, err)
	require.Len(t, txs, 3)

	forex := txs[0]
	assert.InDelta(t, -5, forex.DirectFee, 1e-9, "commission is charged regardless of the sign it was reported with")
	assert.InDelta(t, 78000, forex.GrossTransactionValue, 1e-9)
	assert.InDelta(t, 77995, forex.NetTransactionValue, 1e-9)

	future := txs[1]
	assert.InDelta(t, -2.5, future.DirectFee, 1e-9)
	assert.InDelta(t, 152497.5, future.NetTransactionValue, 1e-9)
}

func TestCanonicalFuture_ContractVariants(t *testing.T) {
	cases := []struct {
		symbol string
		want   string
	}{
		{"ES.CME.Z2019", "ESZ19"},
		{"MES.CME.H2020", "ESH20"},
		{"NK225M.OE.M2020", "NKM20"},
		{"JN4F.OE.U19", "NKU19"},
		{"HSI.HKEX.F2020", "HIF20"},
		{"TOPIX.OE.Z19", "TPZ19"},
	}
	for _, tc := range cases {
		got, err := canonicalFuture(tc.symbol)
		require.NoError(t, err, tc.symbol)
		assert.Equal(t, tc.want, got, tc.symbol)
	}

	_, err := canonicalFuture("DAX.EUREX.Z2019")
	assert.Error(t, err, "contracts outside the known set are rejected, not guessed")
}

const transactionsCSV = `Transaction ID,Symbol ID,Operation type,When,Sum,Asset,Comment
100,ES.CME.Z2019,TRADE,2019-11-05 15:00:00,-152500,USD,trade
101,ES.CME.Z2019,COMMISSION,2019-11-05 15:00:00,-2.5,USD,commission
102,None,ROLLOVER,2019-11-06 02:00:00,-12.4,USD,rollover interest
103,None,FUNDING/WITHDRAWAL,2019-11-07 09:00:00,50000,GBP,funding
104,None,FEE,2019-11-08 00:00:00,-30,EUR,exchange fee
105,None,DIVIDEND,2019-11-09 00:00:00,15,USD,odd one out
`

func TestTransactionsParser_LedgerRows(t *testing.T) {
	txs, err := NewTransactionsParser().Parse(strings.NewReader(transactionsCSV))
	require.NoError(t, err)
	require.Len(t, txs, 3, "trade, commission and unrecognized operations are skipped")

	rollover := txs[0]
	assert.Equal(t, models.Interest, rollover.TransactionType)
	assert.Equal(t, models.Cash, rollover.AssetType)
	assert.Equal(t, "USD", rollover.Symbol)
	assert.Equal(t, "USD", rollover.Currency)
	assert.InDelta(t, 1, rollover.Price, 1e-9)
	assert.InDelta(t, -12.4, rollover.Quantity, 1e-9)
	assert.InDelta(t, -12.4, rollover.NetTransactionValue, 1e-9)
	assert.Equal(t, time.Date(2019, time.November, 6, 0, 0, 0, 0, time.UTC), rollover.ValueDate,
		"the value date is the ledger day, not the timestamp")
	assert.Equal(t, "102", rollover.UniqueKey)

	assert.Equal(t, models.Transfer, txs[1].TransactionType)
	assert.Equal(t, "GBP", txs[1].Currency)
	assert.Equal(t, models.Fee, txs[2].TransactionType)
	assert.Equal(t, "EUR", txs[2].Currency)
}

func TestParse_MissingColumnFails(t *testing.T) {
	truncated := "Time,Side,Symbol ID\n2019-11-05 14:30:00,buy,USD/GBP.E.FX\n"
	_, err := NewTradesParser().Parse(strings.NewReader(truncated))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}
