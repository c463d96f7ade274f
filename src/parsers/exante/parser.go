package exante

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

const (
	tradeTimeLayout = "2006-01-02 15:04:05"
	valueDateLayout = "2006-01-02"
)

// TradesParser reads the broker's Trades export. Each row is one fill;
// symbols are canonicalized so the matching engine sees the same names
// regardless of which custodian reported them.
type TradesParser struct{}

func NewTradesParser() *TradesParser {
	return &TradesParser{}
}

func (p *TradesParser) Parse(file io.Reader) ([]models.Transaction, error) {
	rows, header, err := readStatement(file)
	if err != nil {
		return nil, err
	}

	col, err := columnIndex(header, "Time", "Side", "Symbol ID", "Type", "Price",
		"Currency", "Quantity", "Commission", "Traded Volume", "Order Id", "Value date")
	if err != nil {
		return nil, fmt.Errorf("trades statement: %w", err)
	}

	var txs []models.Transaction
	for _, record := range rows {
		transactionTime, err := time.ParseInLocation(tradeTimeLayout, record[col["Time"]], time.UTC)
		if err != nil {
			log.Printf("Skipping trade row due to invalid time: %s", record[col["Time"]])
			continue
		}
		valueDate, err := time.ParseInLocation(valueDateLayout, record[col["Value date"]], time.UTC)
		if err != nil {
			log.Printf("Skipping trade row due to invalid value date: %s", record[col["Value date"]])
			continue
		}

		assetType, symbol, err := canonicalize(record[col["Type"]], record[col["Symbol ID"]])
		if err != nil {
			log.Printf("Skipping trade row: %v", err)
			continue
		}

		directFee := -math.Abs(parseFloat(record[col["Commission"]]))
		gross := parseFloat(record[col["Traded Volume"]])

		txs = append(txs, models.Transaction{
			Custodian:             models.Exante,
			Owner:                 models.Alex,
			Group:                 models.GroupShiny,
			AssetName:             assetName(assetType, symbol),
			TransactionTime:       transactionTime,
			ValueDate:             valueDate,
			Symbol:                symbol,
			Currency:              record[col["Currency"]],
			TransactionType:       models.TransactionType(strings.ToLower(record[col["Side"]])),
			AssetType:             assetType,
			Price:                 parseFloat(record[col["Price"]]),
			Quantity:              parseFloat(record[col["Quantity"]]),
			Tax:                   0,
			DirectFee:             directFee,
			IndirectFee:           0,
			GrossTransactionValue: gross,
			NetTransactionValue:   gross + directFee,
			UniqueKey:             record[col["Order Id"]],
		})
	}
	return txs, nil
}

// TransactionsParser reads the broker's Financial transactions export: the
// cash ledger side of the account. Trade and commission rows are skipped
// because the Trades export already carries them.
type TransactionsParser struct{}

func NewTransactionsParser() *TransactionsParser {
	return &TransactionsParser{}
}

var operationTypes = map[string]models.TransactionType{
	"ROLLOVER":           models.Interest,
	"INTEREST":           models.Interest,
	"FEE":                models.Fee,
	"FUNDING/WITHDRAWAL": models.Transfer,
}

func (p *TransactionsParser) Parse(file io.Reader) ([]models.Transaction, error) {
	rows, header, err := readStatement(file)
	if err != nil {
		return nil, err
	}

	col, err := columnIndex(header, "Transaction ID", "Symbol ID", "Operation type",
		"When", "Sum", "Asset", "Comment")
	if err != nil {
		return nil, fmt.Errorf("transactions statement: %w", err)
	}

	var txs []models.Transaction
	for _, record := range rows {
		operation := record[col["Operation type"]]
		if operation == "TRADE" || operation == "COMMISSION" {
			continue
		}
		transactionType, ok := operationTypes[operation]
		if !ok {
			log.Printf("Skipping transaction row with operation type: %s", operation)
			continue
		}

		transactionTime, err := time.ParseInLocation(tradeTimeLayout, record[col["When"]], time.UTC)
		if err != nil {
			log.Printf("Skipping transaction row due to invalid time: %s", record[col["When"]])
			continue
		}

		currency := record[col["Asset"]]
		amount := parseFloat(record[col["Sum"]])

		txs = append(txs, models.Transaction{
			Custodian:             models.Exante,
			Owner:                 models.Alex,
			Group:                 models.GroupShiny,
			AssetName:             currency,
			TransactionTime:       transactionTime,
			ValueDate:             transactionTime.Truncate(24 * time.Hour),
			Symbol:                currency,
			Currency:              currency,
			TransactionType:       transactionType,
			AssetType:             models.Cash,
			Price:                 1,
			Quantity:              amount,
			GrossTransactionValue: amount,
			NetTransactionValue:   amount,
			Description:           record[col["Comment"]],
			UniqueKey:             record[col["Transaction ID"]],
		})
	}
	return txs, nil
}

func readStatement(file io.Reader) ([][]string, []string, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	want := len(header)
	kept := rows[:0]
	for _, record := range rows {
		if len(record) >= want {
			kept = append(kept, record)
		}
	}
	return kept, header, nil
}

func columnIndex(header []string, names ...string) (map[string]int, error) {
	col := make(map[string]int, len(names))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range names {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return col, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

// futureStubs maps the broker's contract prefixes to the short index stubs
// the rest of the system keys on.
var futureStubs = map[string]string{
	"ES.CME":    "ES",
	"MES.CME":   "ES",
	"RTY.CME":   "RTY",
	"TOPIX.OE":  "TP",
	"JN4F.OE":   "NK",
	"NK225M.OE": "NK",
	"NK225.OE":  "NK",
	"HSI.HKEX":  "HI",
}

// currencyPrecedence orders fx pair legs so the same economic pair always
// canonicalizes to one symbol (GBP/USD, never USD/GBP).
var currencyPrecedence = map[string]int{"GBP": 100, "EUR": 90, "USD": 80, "JPY": 70}

func canonicalize(rawType, symbol string) (models.AssetType, string, error) {
	switch rawType {
	case "FOREX":
		sym, err := canonicalFxPair(symbol)
		return models.FxSpot, sym, err
	case "FX_SPOT":
		// The broker labels deliverable currency futures FX_SPOT.
		sym, err := canonicalFxPair(symbol)
		return models.FxFuture, sym, err
	case "FUTURE":
		sym, err := canonicalFuture(symbol)
		return models.IndexFuture, sym, err
	}
	return models.AssetUnknown, "", fmt.Errorf("unsupported instrument type %q for symbol %q", rawType, symbol)
}

func canonicalFxPair(symbol string) (string, error) {
	pair, _, _ := strings.Cut(symbol, ".")
	numerator, denominator, found := strings.Cut(pair, "/")
	if !found {
		return "", fmt.Errorf("cannot parse fx symbol %q", symbol)
	}
	if currencyPrecedence[numerator] < currencyPrecedence[denominator] {
		numerator, denominator = denominator, numerator
	}
	return numerator + "/" + denominator, nil
}

func canonicalFuture(symbol string) (string, error) {
	parts := strings.Split(symbol, ".")
	if len(parts) != 3 || len(parts[2]) < 2 {
		return "", fmt.Errorf("cannot parse future symbol %q", symbol)
	}
	stub, ok := futureStubs[parts[0]+"."+parts[1]]
	if !ok {
		return "", fmt.Errorf("unknown future contract %q", symbol)
	}
	monthLetter := parts[2][:1]
	year := parts[2][1:]
	if len(year) == 4 {
		year = year[2:]
	}
	return stub + monthLetter + year, nil
}

// assetName carries the geography hint as a standalone word: "ES Z19" for the
// future ESZ19, the pair itself for fx.
func assetName(assetType models.AssetType, symbol string) string {
	if assetType == models.IndexFuture && len(symbol) > 3 {
		return symbol[:len(symbol)-3] + " " + symbol[len(symbol)-3:]
	}
	return symbol
}
