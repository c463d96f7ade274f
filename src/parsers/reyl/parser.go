package reyl

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

// The statement carries a few banner rows before the column header; the
// account currency sits in the banner, not in the rows.
const headerRow = 5

// CashMovementParser reads the custodian's cash account statement. Every
// booked ledger line becomes a CashMovement; classification happens later
// from the description text.
type CashMovementParser struct{}

func NewCashMovementParser() *CashMovementParser {
	return &CashMovementParser{}
}

func (p *CashMovementParser) Parse(file io.Reader) ([]models.CashMovement, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}
	if len(raw) <= headerRow {
		return nil, fmt.Errorf("statement too short: %d rows", len(raw))
	}

	currency, err := findCurrency(raw)
	if err != nil {
		return nil, err
	}

	header := raw[headerRow]
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range []string{"Trade date", "Value date", "Description", "Debit", "Credit", "Balance"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("cash statement: missing column %q", name)
		}
	}

	var movements []models.CashMovement
	seen := make(map[string]int)
	for _, record := range raw[headerRow+1:] {
		if len(record) < len(header) {
			continue
		}
		transactionDate, err1 := parseDate(record[col["Trade date"]])
		valueDate, err2 := parseDate(record[col["Value date"]])
		if err1 != nil || err2 != nil {
			// Running balance and footer rows have no dates.
			continue
		}

		movement := models.CashMovement{
			Custodian:       models.Reyl,
			Owner:           models.MidPacificAM,
			Group:           models.GroupMFT,
			TransactionDate: transactionDate,
			ValueDate:       valueDate,
			DebitAmount:     parseAmount(record[col["Debit"]]),
			CreditAmount:    parseAmount(record[col["Credit"]]),
			Balance:         parseAmount(record[col["Balance"]]),
			Description:     strings.TrimSpace(record[col["Description"]]),
			Currency:        currency,
		}
		movement.UniqueKey = movementKey(movement, seen)
		movements = append(movements, movement)
	}
	if len(movements) == 0 {
		log.Printf("Cash statement parsed with no booked rows (currency %s)", currency)
	}
	return movements, nil
}

// findCurrency pulls the three-letter account currency from the banner cell
// above the table.
func findCurrency(raw [][]string) (string, error) {
	if len(raw) > 2 && len(raw[2]) > 1 {
		text := strings.TrimSpace(raw[2][1])
		if len(text) >= 3 {
			return text[:3], nil
		}
	}
	return "", fmt.Errorf("cannot find account currency in statement banner")
}

var dateLayouts = []string{"02.01.2006", "02/01/2006", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", s)
}

// movementKey derives a stable dedupe key from the row content, so
// re-uploading the same statement updates rows instead of duplicating them.
// Identical rows within one statement get an occurrence counter so all of
// them survive.
func movementKey(m models.CashMovement, seen map[string]int) string {
	payload := fmt.Sprintf("%s|%s|%s|%g|%g|%g|%s",
		m.TransactionDate.Format("2006-01-02"), m.ValueDate.Format("2006-01-02"),
		m.Description, m.DebitAmount, m.CreditAmount, m.Balance, m.Currency)
	occurrence := seen[payload]
	seen[payload]++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", payload, occurrence)))
	return "reyl-" + hex.EncodeToString(sum[:8])
}

// parseAmount handles blank cells and apostrophe thousands separators.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, ",", "")
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
