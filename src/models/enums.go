package models

// AssetType is the canonical asset classification of a transaction or position.
type AssetType string

const (
	AssetUnknown     AssetType = "unknown"
	IndexFuture      AssetType = "index_future"
	Fund             AssetType = "fund"
	Cash             AssetType = "cash"
	FxSpot           AssetType = "fx_spot"
	CashEquity       AssetType = "cash_equity"
	FxForward        AssetType = "fx_forward"
	FxFuture         AssetType = "fx_future"
	EquityIndex      AssetType = "equity_index"
	VolatilityIndex  AssetType = "volatility_index"
)

// TransactionType is the canonical economic direction/kind of a transaction.
type TransactionType string

const (
	TxUnknown  TransactionType = "unknown"
	Buy        TransactionType = "buy"
	Sell       TransactionType = "sell"
	Interest   TransactionType = "interest"
	Dividend   TransactionType = "dividend"
	Fee        TransactionType = "fee"
	Transfer   TransactionType = "transfer"
)

// Classification is the reconciliation bucket a cash movement or transaction
// falls into. Fund/fx/future buckets share values with AssetType on purpose:
// the two sides of the reconciliation must group under the same key.
type Classification string

const (
	ClassFund        Classification = Classification(Fund)
	ClassFxForward   Classification = Classification(FxForward)
	ClassFxSpot      Classification = Classification(FxSpot)
	ClassIndexFuture Classification = Classification(IndexFuture)
	ClassFxFuture    Classification = Classification(FxFuture)
	ClassTransfer    Classification = Classification(Transfer)
	ClassInterest    Classification = Classification(Interest)
	ClassDividend    Classification = Classification(Dividend)
	ClassFee         Classification = Classification(Fee)
)

// Custodian, Owner and Group identify the scope a record belongs to.
type Custodian string

const (
	CustodianUnknown Custodian = "unknown"
	Reyl             Custodian = "Reyl"
	Exante           Custodian = "Exante"
	UBS              Custodian = "UBS"
	Selftrade        Custodian = "Selftrade"
)

type Owner string

const (
	OwnerUnknown Owner = "unknown"
	Shiny        Owner = "Shiny"
	Alex         Owner = "Alex"
	MidPacificAM Owner = "Mid Pacific AM"
)

type Group string

const (
	GroupUnknown Group = "unknown"
	GroupShiny   Group = "Shiny"
	GroupAviva   Group = "Aviva"
	GroupMFT     Group = "MFT"
)
