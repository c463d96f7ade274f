package models

import (
	"encoding/json"
	"strconv"
)

// TradeID identifies the trade a transaction belongs to. It is a closed
// variant: either a numbered open trade, the Test sentinel (synthetic or
// demo transactions excluded from matching), or Unmatched (matching failed
// and must be surfaced to the caller).
type TradeID struct {
	kind tradeIDKind
	n    int
}

type tradeIDKind uint8

const (
	tradeIDUnmatched tradeIDKind = iota
	tradeIDTest
	tradeIDOpen
)

var (
	TestTrade      = TradeID{kind: tradeIDTest}
	UnmatchedTrade = TradeID{kind: tradeIDUnmatched}
)

func OpenTrade(n int) TradeID {
	return TradeID{kind: tradeIDOpen, n: n}
}

func (t TradeID) IsTest() bool      { return t.kind == tradeIDTest }
func (t TradeID) IsUnmatched() bool { return t.kind == tradeIDUnmatched }
func (t TradeID) IsOpen() bool      { return t.kind == tradeIDOpen }

// Number returns the trade number of an open trade id and false otherwise.
func (t TradeID) Number() (int, bool) {
	if t.kind != tradeIDOpen {
		return 0, false
	}
	return t.n, true
}

// String renders the legacy report values: the trade number, "test" or
// "error". Downstream report consumers still expect these spellings.
func (t TradeID) String() string {
	switch t.kind {
	case tradeIDTest:
		return "test"
	case tradeIDOpen:
		return strconv.Itoa(t.n)
	default:
		return "error"
	}
}

func (t TradeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
