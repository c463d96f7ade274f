package parsers

import (
	"fmt"
	"io"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
	"github.com/lynardsalingujay/lynardme-datafeed/src/parsers/exante"
	"github.com/lynardsalingujay/lynardme-datafeed/src/parsers/reyl"
)

// GetParser resolves a parser from an explicit source and statement kind.
// There is no format sniffing: the uploader says what the file is.
func GetParser(source, kind string) (StatementParser, error) {
	switch source {
	case "exante":
		switch kind {
		case "trades":
			return transactionStatement{exante.NewTradesParser()}, nil
		case "transactions":
			return transactionStatement{exante.NewTransactionsParser()}, nil
		}
	case "reyl":
		switch kind {
		case "cash":
			return cashMovementStatement{reyl.NewCashMovementParser()}, nil
		}
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
	return nil, fmt.Errorf("no %q parser available for source %q", kind, source)
}

// The source-specific parsers each emit one record kind; these adapters lift
// them into full statements.

type transactionStatement struct {
	parser interface {
		Parse(file io.Reader) ([]models.Transaction, error)
	}
}

func (s transactionStatement) Parse(file io.Reader) (ParsedStatement, error) {
	txs, err := s.parser.Parse(file)
	return ParsedStatement{Transactions: txs}, err
}

type cashMovementStatement struct {
	parser interface {
		Parse(file io.Reader) ([]models.CashMovement, error)
	}
}

func (s cashMovementStatement) Parse(file io.Reader) (ParsedStatement, error) {
	movements, err := s.parser.Parse(file)
	return ParsedStatement{CashMovements: movements}, err
}
