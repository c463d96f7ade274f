package models

import (
	"strings"
	"time"
)

// CashMovement is one custodian ledger entry. Its classification is derived
// from the description text, never stored.
type CashMovement struct {
	Custodian       Custodian `json:"custodian"`
	Owner           Owner     `json:"owner"`
	Group           Group     `json:"group"`
	TransactionDate time.Time `json:"transaction_date"`
	ValueDate       time.Time `json:"value_date"`
	DebitAmount     float64   `json:"debit_amount"`
	CreditAmount    float64   `json:"credit_amount"`
	Balance         float64   `json:"balance"`
	Description     string    `json:"description"`
	Currency        string    `json:"currency"`
	UniqueKey       string    `json:"unique_key,omitempty"`
}

// Amount is the signed ledger amount (credits positive).
func (m CashMovement) Amount() float64 {
	return m.CreditAmount - m.DebitAmount
}

// Classify maps the ledger description to a reconciliation bucket. The rules
// are ordered and the first match wins; some prefixes overlap so the order
// matters. An unrecognized description is a ClassificationError.
func (m CashMovement) Classify() (Classification, error) {
	return ClassifyDescription(m.Description)
}

// ClassifyDescription is the pure classification function behind
// CashMovement.Classify; classifying the same description twice always
// yields the same bucket.
func ClassifyDescription(description string) (Classification, error) {
	lower := strings.ToLower(description)
	switch {
	case hasAnyPrefix(description, "Subscr.", "Repurch", "Corr. Subscr.", "Corr. Repurch"):
		return ClassFund, nil
	case strings.HasPrefix(description, "Your "):
		switch len(strings.Split(description, " ")) {
		case 5:
			return ClassFxForward, nil
		case 4:
			return ClassFxSpot, nil
		}
	case strings.Contains(lower, "future"), // also matches "futures"
		strings.HasPrefix(description, "ajustement marge"),
		strings.Contains(description, "variation de marge"),
		hasAnyPrefix(description, "Sale", "Purchase"):
		return ClassIndexFuture, nil
	case strings.Contains(description, "TRANSFER"), strings.Contains(description, "NO."):
		return ClassTransfer, nil
	case strings.Contains(description, "interest"):
		return ClassInterest, nil
	case strings.Contains(description, "Cash distrib. "):
		return ClassDividend, nil
	case strings.Contains(description, "Administration Fee"),
		strings.Contains(description, "Commercial"),
		strings.Contains(description, "Custody fee"):
		return ClassFee, nil
	}
	return "", &ClassificationError{Text: description}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
