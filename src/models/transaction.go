package models

import "time"

// Transaction is one canonical economic event, already normalized by the
// statement parsers: canonical symbol, enum-valued asset and transaction
// types. Quantity sign encodes direction for directional asset types
// (negative = sell/close, positive = buy/open).
type Transaction struct {
	Custodian             Custodian       `json:"custodian"`
	Owner                 Owner           `json:"owner"`
	Group                 Group           `json:"group"`
	AssetName             string          `json:"asset_name"`
	TransactionTime       time.Time       `json:"transaction_time"`
	ValueDate             time.Time       `json:"value_date"`
	Symbol                string          `json:"symbol"`
	Currency              string          `json:"currency"`
	TransactionType       TransactionType `json:"transaction_type"`
	AssetType             AssetType       `json:"asset_type"`
	Price                 float64         `json:"price"`
	Quantity              float64         `json:"quantity"`
	Tax                   float64         `json:"tax"`
	DirectFee             float64         `json:"direct_fee"`
	IndirectFee           float64         `json:"indirect_fee"`
	NetTransactionValue   float64         `json:"net_transaction_value"`
	GrossTransactionValue float64         `json:"gross_transaction_value"`
	Description           string          `json:"description"`

	// UniqueKey, when non-empty, deduplicates the transaction across
	// repeated ingestion (idempotent upsert key in the record store).
	UniqueKey string `json:"unique_key,omitempty"`
}

// Fees is the total cost load of the transaction.
func (t Transaction) Fees() float64 {
	return t.DirectFee + t.IndirectFee + t.Tax
}

// Position is a holdings snapshot as-of a date. Only cash-type positions
// participate in the cash reconciliation.
type Position struct {
	Custodian Custodian `json:"custodian"`
	Owner     Owner     `json:"owner"`
	Group     Group     `json:"group"`
	ValueDate time.Time `json:"value_date,omitempty"`
	AsOfDate  time.Time `json:"as_of_date"`
	Symbol    string    `json:"symbol"`
	Currency  string    `json:"currency"`
	AssetType AssetType `json:"asset_type"`
	Quantity  float64   `json:"quantity"`
	UniqueKey string    `json:"unique_key,omitempty"`
}
