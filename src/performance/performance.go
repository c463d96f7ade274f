package performance

import (
	"math"
	"sort"
	"time"

	"github.com/lynardsalingujay/lynardme-datafeed/src/matching"
	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

// Grouping columns accepted by TradeSummary.
const (
	ColTradeNumber    = "trade_number"
	ColClassification = "classification"
	ColGeography      = "geography"
	ColCurrency       = "currency"
)

// TotalRowKey labels the synthetic sum row appended to every summary.
const TotalRowKey = "TOTAL"

// SummaryRow is one group of the performance report plus the fixed
// aggregate columns.
type SummaryRow struct {
	Group        map[string]string `json:"group"`
	StartDate    time.Time         `json:"start_date"`
	EndDate      time.Time         `json:"end_date"`
	Geography    string            `json:"geography"`
	TradeSizeGBP float64           `json:"trade_size_gbp"`
	GrossPnLGBP  float64           `json:"gross_pnl_gbp"`
	FeesGBP      float64           `json:"fees_gbp"`
	NetPnLGBP    float64           `json:"net_pnl_gbp"`
	NetReturn    float64           `json:"net_return"`
}

// currencyGeography ties interest pools to trade geographies.
var currencyGeography = map[string]string{
	"JPY": "Japan",
	"USD": "US",
	"EUR": "",
	"GBP": "",
}

var geographyCurrency = map[string]string{
	"Japan": "JPY",
	"US":    "USD",
}

// Aggregator folds matched trades, realized FX rates and interest into a
// GBP performance summary. It is stateless across calls.
type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// perfRow is a matched transaction extended with the derived report columns.
type perfRow struct {
	matching.MatchedTransaction
	classification string
	fxRate         float64
	startDate      time.Time
	endDate        time.Time
}

// TradeSummary produces per-group P&L in GBP plus a TOTAL row. The TOTAL
// row is the column-wise sum of the group rows, not a recomputation from
// raw data. Interest transactions are supplied separately because the
// matcher gives them no trade: their total is allocated across trades in
// proportion to trade size and holding duration, split between the GBP and
// non-GBP pools.
func (a *Aggregator) TradeSummary(matched []matching.MatchedTransaction, interest []models.Transaction, groupBy []string) []SummaryRow {
	if len(groupBy) == 0 {
		groupBy = []string{ColTradeNumber}
	}

	rows := make([]perfRow, 0, len(matched))
	for _, m := range matched {
		if m.TradeID.IsTest() {
			continue
		}
		rows = append(rows, perfRow{MatchedTransaction: m})
	}

	starts, ends := tradeDates(rows)
	for i := range rows {
		key := rows[i].TradeID.String()
		rows[i].startDate = starts[key]
		rows[i].endDate = ends[key]
	}

	rows = append(rows, a.interestRows(rows, interest, starts, ends)...)
	classify(rows)
	mergeFxRates(rows)

	groups := make(map[string]*SummaryRow)
	var order []string
	for _, row := range rows {
		fees := row.Fees()
		valueAtEnd := 0.0
		if row.AssetType == models.FxForward || row.AssetType == models.FxSpot {
			valueAtEnd = row.Quantity * row.fxRate
		}
		grossPnL := valueAtEnd - row.GrossTransactionValue
		netPnL := grossPnL + fees

		key, group := groupKey(groupBy, row)
		sum, ok := groups[key]
		if !ok {
			sum = &SummaryRow{Group: group}
			groups[key] = sum
			order = append(order, key)
		}
		if row.fxRate != 0 {
			sum.GrossPnLGBP += grossPnL / row.fxRate
			sum.FeesGBP += fees / row.fxRate
			sum.NetPnLGBP += netPnL / row.fxRate
		}
		if sum.StartDate.IsZero() || (!row.startDate.IsZero() && row.startDate.Before(sum.StartDate)) {
			sum.StartDate = row.startDate
		}
		if row.endDate.After(sum.EndDate) {
			sum.EndDate = row.endDate
		}
		if row.Geography > sum.Geography {
			sum.Geography = row.Geography
		}
		if row.TradeSizeGBP > sum.TradeSizeGBP {
			sum.TradeSizeGBP = row.TradeSizeGBP
		}
	}

	sort.Strings(order)
	out := make([]SummaryRow, 0, len(order)+1)
	total := SummaryRow{Group: map[string]string{ColTradeNumber: TotalRowKey}}
	for _, key := range order {
		row := *groups[key]
		if row.TradeSizeGBP != 0 {
			row.NetReturn = row.NetPnLGBP / row.TradeSizeGBP
		}
		out = append(out, row)

		total.GrossPnLGBP += row.GrossPnLGBP
		total.FeesGBP += row.FeesGBP
		total.NetPnLGBP += row.NetPnLGBP
		total.TradeSizeGBP += row.TradeSizeGBP
		if total.StartDate.IsZero() || (!row.StartDate.IsZero() && row.StartDate.Before(total.StartDate)) {
			total.StartDate = row.StartDate
		}
		if row.EndDate.After(total.EndDate) {
			total.EndDate = row.EndDate
		}
	}
	if total.TradeSizeGBP != 0 {
		total.NetReturn = total.NetPnLGBP / total.TradeSizeGBP
	}
	return append(out, total)
}

// tradeDates derives each trade's lifetime from its fund legs: earliest
// opening date to latest closing date.
func tradeDates(rows []perfRow) (starts, ends map[string]time.Time) {
	starts = make(map[string]time.Time)
	ends = make(map[string]time.Time)
	for _, row := range rows {
		if row.AssetType != models.Fund || !row.TradeID.IsOpen() {
			continue
		}
		key := row.TradeID.String()
		switch row.OpenClose {
		case matching.RoleOpen:
			if cur, ok := starts[key]; !ok || row.Date.Before(cur) {
				starts[key] = row.Date
			}
		case matching.RoleClose:
			if row.Date.After(ends[key]) {
				ends[key] = row.Date
			}
		}
	}
	return starts, ends
}

// interestRows distributes the scope's total interest per currency across
// trades, weighted by trade size times holding duration. GBP interest is
// spread over every trade; non-GBP interest only over trades in the
// matching geography.
func (a *Aggregator) interestRows(rows []perfRow, interest []models.Transaction, starts, ends map[string]time.Time) []perfRow {
	pools := make(map[string]float64)
	for _, t := range interest {
		pools[t.Currency] += t.Quantity
	}
	if len(pools) == 0 {
		return nil
	}

	type tradeInfo struct {
		id        models.TradeID
		geography string
		size      float64
		factor    float64
	}
	byTrade := make(map[string]*tradeInfo)
	var keys []string
	for _, row := range rows {
		if !row.TradeID.IsOpen() {
			continue
		}
		key := row.TradeID.String()
		info, ok := byTrade[key]
		if !ok {
			info = &tradeInfo{id: row.TradeID}
			byTrade[key] = info
			keys = append(keys, key)
		}
		if row.Geography > info.geography {
			info.geography = row.Geography
		}
		if row.TradeSizeGBP > info.size {
			info.size = row.TradeSizeGBP
		}
	}
	sort.Strings(keys)

	var totalFactor float64
	geoFactor := make(map[string]float64)
	for _, key := range keys {
		info := byTrade[key]
		start, end := starts[key], ends[key]
		if start.IsZero() || end.IsZero() {
			continue
		}
		info.factor = info.size * end.Sub(start).Hours()
		totalFactor += info.factor
		geoFactor[info.geography] += info.factor
	}

	var out []perfRow
	synth := func(info *tradeInfo, currency string, allocation float64) perfRow {
		tx := models.Transaction{
			AssetType:       models.Cash,
			TransactionType: models.Interest,
			Currency:        currency,
			DirectFee:       -math.Abs(allocation),
		}
		return perfRow{
			MatchedTransaction: matching.MatchedTransaction{
				Transaction:  tx,
				TradeID:      info.id,
				Geography:    info.geography,
				TradeSizeGBP: info.size,
			},
			startDate: starts[info.id.String()],
			endDate:   ends[info.id.String()],
		}
	}
	for _, key := range keys {
		info := byTrade[key]
		if info.factor == 0 {
			continue
		}
		if gbpPool := pools["GBP"]; gbpPool != 0 && totalFactor != 0 {
			out = append(out, synth(info, "GBP", gbpPool*info.factor/totalFactor))
		}
		ccy, ok := geographyCurrency[info.geography]
		if !ok {
			continue
		}
		if pool := pools[ccy]; pool != 0 && geoFactor[info.geography] != 0 {
			out = append(out, synth(info, ccy, pool*info.factor/geoFactor[info.geography]))
		}
	}
	return out
}

// classify buckets every row the same way the reconciliation does: cash
// rows by transaction type, everything else by asset type.
func classify(rows []perfRow) {
	for i := range rows {
		if rows[i].AssetType == models.Cash {
			rows[i].classification = string(rows[i].TransactionType)
		} else {
			rows[i].classification = string(rows[i].AssetType)
		}
	}
}

// mergeFxRates joins the realized FX rate of each (trade, currency): the
// closing fx legs' gross value over their quantity. GBP legs rate 1.
func mergeFxRates(rows []perfRow) {
	type fxKey struct {
		trade    string
		currency string
	}
	gross := make(map[fxKey]float64)
	qty := make(map[fxKey]float64)
	for _, row := range rows {
		if row.OpenClose != matching.RoleClose {
			continue
		}
		if row.AssetType != models.FxForward && row.AssetType != models.FxSpot {
			continue
		}
		k := fxKey{trade: row.TradeID.String(), currency: row.Currency}
		gross[k] += row.GrossTransactionValue
		qty[k] += row.Quantity
	}
	for i := range rows {
		if rows[i].Currency == "GBP" {
			rows[i].fxRate = 1
			continue
		}
		k := fxKey{trade: rows[i].TradeID.String(), currency: rows[i].Currency}
		if q := qty[k]; q != 0 {
			rows[i].fxRate = gross[k] / q
		}
	}
}

func groupKey(groupBy []string, row perfRow) (string, map[string]string) {
	group := make(map[string]string, len(groupBy))
	key := ""
	for _, col := range groupBy {
		var v string
		switch col {
		case ColTradeNumber:
			v = row.TradeID.String()
		case ColClassification:
			v = row.classification
		case ColGeography:
			v = row.Geography
		case ColCurrency:
			v = row.Currency
		}
		group[col] = v
		key += col + "=" + v + "|"
	}
	return key, group
}
