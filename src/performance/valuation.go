package performance

import (
	"sort"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

// Marks supplies the prices and GBP fx rates used to value a position
// snapshot. Cash positions mark at price 1 implicitly.
type Marks struct {
	Prices  map[string]float64 // symbol -> price
	FxRates map[string]float64 // currency -> units per GBP
}

// ValuationRow is the GBP value of one asset-type bucket of the book.
type ValuationRow struct {
	AssetType string  `json:"asset_type"`
	GBPValue  float64 `json:"gbp_value"`
}

// RiskRow extends the valuation with loan-to-value: how much of the book is
// financed by negative cash. Clamped at zero when cash is positive.
type RiskRow struct {
	ValuationRow
	LTV float64 `json:"ltv"`
}

// Valuation marks a position snapshot to market and groups GBP values by
// asset type, appending a total row keyed "total_value".
func (a *Aggregator) Valuation(positions []models.Position, marks Marks) []ValuationRow {
	byAsset := make(map[string]float64)
	var total float64
	for _, p := range positions {
		price := 1.0
		if p.AssetType != models.Cash {
			price = marks.Prices[p.Symbol]
		}
		fx, ok := marks.FxRates[p.Currency]
		if !ok {
			if p.Currency == "GBP" {
				fx = 1
			} else {
				continue
			}
		}
		if fx == 0 {
			continue
		}
		value := price * p.Quantity / fx
		byAsset[string(p.AssetType)] += value
		total += value
	}

	assets := make([]string, 0, len(byAsset))
	for asset := range byAsset {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	rows := make([]ValuationRow, 0, len(assets)+1)
	for _, asset := range assets {
		rows = append(rows, ValuationRow{AssetType: asset, GBPValue: byAsset[asset]})
	}
	return append(rows, ValuationRow{AssetType: "total_value", GBPValue: total})
}

// RiskReport computes LTV per the valuation: negative cash over total value.
func (a *Aggregator) RiskReport(positions []models.Position, marks Marks) []RiskRow {
	valuation := a.Valuation(positions, marks)
	var cash, total float64
	for _, row := range valuation {
		switch row.AssetType {
		case string(models.Cash):
			cash = row.GBPValue
		case "total_value":
			total = row.GBPValue
		}
	}
	rows := make([]RiskRow, 0, len(valuation))
	for _, row := range valuation {
		ltv := 0.0
		if total != 0 {
			ltv = -cash / total
		}
		if ltv < 0 {
			ltv = 0
		}
		rows = append(rows, RiskRow{ValuationRow: row, LTV: ltv})
	}
	return rows
}
