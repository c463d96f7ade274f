package parsers

import (
	"io"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

// ParsedStatement is everything a single statement upload yields. Most
// statements fill exactly one of the three slices.
type ParsedStatement struct {
	Transactions  []models.Transaction
	CashMovements []models.CashMovement
	Positions     []models.Position
}

// Count is the number of records across all record kinds.
func (s ParsedStatement) Count() int {
	return len(s.Transactions) + len(s.CashMovements) + len(s.Positions)
}

// StatementParser turns one uploaded statement file into canonical records.
type StatementParser interface {
	Parse(file io.Reader) (ParsedStatement, error)
}
