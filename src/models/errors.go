package models

import (
	"fmt"
	"time"
)

// ClassificationError reports a description or asset name that matched no
// known classification pattern or geography keyword. It is never swallowed:
// a silent misclassification would corrupt every downstream reconciliation.
type ClassificationError struct {
	Text string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("cannot classify %q", e.Text)
}

// MatchingAmbiguityError reports close transactions that could not be
// attributed to any open trade. The offending rows keep their Unmatched
// trade id; they are reported, never assigned a default trade.
type MatchingAmbiguityError struct {
	UniqueKeys []string
}

func (e *MatchingAmbiguityError) Error() string {
	return fmt.Sprintf("%d transactions could not be matched to a trade", len(e.UniqueKeys))
}

// ReconciliationGapError is returned when all three of cash movement,
// transaction and position legs are non-empty for the same scope. It is
// ambiguous which two legs to compare, so the engine refuses to choose.
type ReconciliationGapError struct {
	AsOf time.Time
}

func (e *ReconciliationGapError) Error() string {
	return fmt.Sprintf("cash movements, transactions and positions all present as of %s: which two legs to compare is ambiguous", e.AsOf.Format("2006-01-02"))
}
