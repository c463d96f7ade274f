package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

// Scope narrows a fetch to one custodian/owner/group. Empty fields match
// everything.
type Scope struct {
	Custodian models.Custodian
	Owner     models.Owner
	Group     models.Group
}

// RecordStore is the canonical record source the matching and
// reconciliation engines read from. Fetches return fully materialized,
// time-ordered slices: transactions by transaction time, cash movements by
// transaction date, positions by as-of date, all ascending and cut off at
// asOf.
type RecordStore interface {
	UpsertTransactions(txs []models.Transaction) (int, error)
	UpsertCashMovements(movements []models.CashMovement) (int, error)
	UpsertPositions(positions []models.Position) (int, error)

	FetchTransactions(scope Scope, asOf time.Time) ([]models.Transaction, error)
	FetchCashMovements(scope Scope, asOf time.Time) ([]models.CashMovement, error)
	FetchPositions(scope Scope, asOf time.Time) ([]models.Position, error)
}

// SQLStore implements RecordStore on the sqlite record database.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const timeLayout = time.RFC3339

// nullables turn optional fields into NULL so blank unique keys never
// collide on the UNIQUE constraint.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func (s *SQLStore) UpsertTransactions(txs []models.Transaction) (int, error) {
	dbTx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction upsert: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions
		(custodian, owner, record_group, asset_name, transaction_time, value_date, symbol, currency,
		 transaction_type, asset_type, price, quantity, tax, direct_fee, indirect_fee,
		 net_transaction_value, gross_transaction_value, description, unique_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_key) DO UPDATE SET
		 custodian=excluded.custodian, owner=excluded.owner, record_group=excluded.record_group,
		 asset_name=excluded.asset_name, transaction_time=excluded.transaction_time,
		 value_date=excluded.value_date, symbol=excluded.symbol, currency=excluded.currency,
		 transaction_type=excluded.transaction_type, asset_type=excluded.asset_type,
		 price=excluded.price, quantity=excluded.quantity, tax=excluded.tax,
		 direct_fee=excluded.direct_fee, indirect_fee=excluded.indirect_fee,
		 net_transaction_value=excluded.net_transaction_value,
		 gross_transaction_value=excluded.gross_transaction_value,
		 description=excluded.description`)
	if err != nil {
		return 0, fmt.Errorf("preparing transaction upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		_, err := stmt.Exec(string(t.Custodian), string(t.Owner), string(t.Group), t.AssetName,
			t.TransactionTime.UTC().Format(timeLayout), t.ValueDate.UTC().Format(timeLayout),
			t.Symbol, t.Currency, string(t.TransactionType), string(t.AssetType),
			t.Price, t.Quantity, t.Tax, t.DirectFee, t.IndirectFee,
			t.NetTransactionValue, t.GrossTransactionValue, t.Description, nullString(t.UniqueKey))
		if err != nil {
			return 0, fmt.Errorf("upserting transaction (unique_key=%s): %w", t.UniqueKey, err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction upsert: %w", err)
	}
	return len(txs), nil
}

func (s *SQLStore) UpsertCashMovements(movements []models.CashMovement) (int, error) {
	dbTx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning cash movement upsert: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO cash_movements
		(custodian, owner, record_group, transaction_date, value_date, debit_amount, credit_amount,
		 balance, description, currency, unique_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_key) DO UPDATE SET
		 custodian=excluded.custodian, owner=excluded.owner, record_group=excluded.record_group,
		 transaction_date=excluded.transaction_date, value_date=excluded.value_date,
		 debit_amount=excluded.debit_amount, credit_amount=excluded.credit_amount,
		 balance=excluded.balance, description=excluded.description, currency=excluded.currency`)
	if err != nil {
		return 0, fmt.Errorf("preparing cash movement upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range movements {
		_, err := stmt.Exec(string(m.Custodian), string(m.Owner), string(m.Group),
			m.TransactionDate.UTC().Format(timeLayout), m.ValueDate.UTC().Format(timeLayout),
			m.DebitAmount, m.CreditAmount, m.Balance, m.Description, m.Currency, nullString(m.UniqueKey))
		if err != nil {
			return 0, fmt.Errorf("upserting cash movement (unique_key=%s): %w", m.UniqueKey, err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("committing cash movement upsert: %w", err)
	}
	return len(movements), nil
}

func (s *SQLStore) UpsertPositions(positions []models.Position) (int, error) {
	dbTx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning position upsert: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO positions
		(custodian, owner, record_group, value_date, as_of_date, symbol, currency, asset_type,
		 quantity, unique_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_key) DO UPDATE SET
		 custodian=excluded.custodian, owner=excluded.owner, record_group=excluded.record_group,
		 value_date=excluded.value_date, as_of_date=excluded.as_of_date, symbol=excluded.symbol,
		 currency=excluded.currency, asset_type=excluded.asset_type, quantity=excluded.quantity`)
	if err != nil {
		return 0, fmt.Errorf("preparing position upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		_, err := stmt.Exec(string(p.Custodian), string(p.Owner), string(p.Group),
			nullTime(p.ValueDate), p.AsOfDate.UTC().Format(timeLayout),
			p.Symbol, p.Currency, string(p.AssetType), p.Quantity, nullString(p.UniqueKey))
		if err != nil {
			return 0, fmt.Errorf("upserting position (unique_key=%s): %w", p.UniqueKey, err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("committing position upsert: %w", err)
	}
	return len(positions), nil
}

func scopeClause(scope Scope) (string, []any) {
	clause := ""
	var args []any
	if scope.Custodian != "" {
		clause += " AND custodian = ?"
		args = append(args, string(scope.Custodian))
	}
	if scope.Owner != "" {
		clause += " AND owner = ?"
		args = append(args, string(scope.Owner))
	}
	if scope.Group != "" {
		clause += " AND record_group = ?"
		args = append(args, string(scope.Group))
	}
	return clause, args
}

func (s *SQLStore) FetchTransactions(scope Scope, asOf time.Time) ([]models.Transaction, error) {
	clause, args := scopeClause(scope)
	query := `SELECT custodian, owner, record_group, asset_name, transaction_time, value_date,
		symbol, currency, transaction_type, asset_type, price, quantity, tax, direct_fee,
		indirect_fee, net_transaction_value, gross_transaction_value, description, unique_key
		FROM transactions WHERE transaction_time <= ?` + clause + ` ORDER BY transaction_time ASC, id ASC`
	args = append([]any{asOf.UTC().Format(timeLayout)}, args...)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var custodian, owner, group, transactionType, assetType string
		var transactionTime, valueDate string
		var assetName, description, uniqueKey sql.NullString
		if err := rows.Scan(&custodian, &owner, &group, &assetName, &transactionTime, &valueDate,
			&t.Symbol, &t.Currency, &transactionType, &assetType, &t.Price, &t.Quantity, &t.Tax,
			&t.DirectFee, &t.IndirectFee, &t.NetTransactionValue, &t.GrossTransactionValue,
			&description, &uniqueKey); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.Custodian = models.Custodian(custodian)
		t.Owner = models.Owner(owner)
		t.Group = models.Group(group)
		t.TransactionType = models.TransactionType(transactionType)
		t.AssetType = models.AssetType(assetType)
		t.AssetName = assetName.String
		t.Description = description.String
		t.UniqueKey = uniqueKey.String
		if t.TransactionTime, err = parseTime(transactionTime); err != nil {
			return nil, fmt.Errorf("parsing transaction_time %q: %w", transactionTime, err)
		}
		if t.ValueDate, err = parseTime(valueDate); err != nil {
			return nil, fmt.Errorf("parsing value_date %q: %w", valueDate, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) FetchCashMovements(scope Scope, asOf time.Time) ([]models.CashMovement, error) {
	clause, args := scopeClause(scope)
	query := `SELECT custodian, owner, record_group, transaction_date, value_date, debit_amount,
		credit_amount, balance, description, currency, unique_key
		FROM cash_movements WHERE transaction_date <= ?` + clause + ` ORDER BY transaction_date ASC, id ASC`
	args = append([]any{asOf.UTC().Format(timeLayout)}, args...)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cash movements: %w", err)
	}
	defer rows.Close()

	var out []models.CashMovement
	for rows.Next() {
		var m models.CashMovement
		var custodian, owner, group, transactionDate, valueDate string
		var description, uniqueKey sql.NullString
		if err := rows.Scan(&custodian, &owner, &group, &transactionDate, &valueDate,
			&m.DebitAmount, &m.CreditAmount, &m.Balance, &description, &m.Currency, &uniqueKey); err != nil {
			return nil, fmt.Errorf("scanning cash movement: %w", err)
		}
		m.Custodian = models.Custodian(custodian)
		m.Owner = models.Owner(owner)
		m.Group = models.Group(group)
		m.Description = description.String
		m.UniqueKey = uniqueKey.String
		if m.TransactionDate, err = parseTime(transactionDate); err != nil {
			return nil, fmt.Errorf("parsing transaction_date %q: %w", transactionDate, err)
		}
		if m.ValueDate, err = parseTime(valueDate); err != nil {
			return nil, fmt.Errorf("parsing value_date %q: %w", valueDate, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) FetchPositions(scope Scope, asOf time.Time) ([]models.Position, error) {
	clause, args := scopeClause(scope)
	query := `SELECT custodian, owner, record_group, value_date, as_of_date, symbol, currency,
		asset_type, quantity, unique_key
		FROM positions WHERE as_of_date <= ?` + clause + ` ORDER BY as_of_date ASC, id ASC`
	args = append([]any{asOf.UTC().Format(timeLayout)}, args...)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		var p models.Position
		var custodian, owner, group, assetType, asOfDate string
		var valueDate, uniqueKey sql.NullString
		if err := rows.Scan(&custodian, &owner, &group, &valueDate, &asOfDate,
			&p.Symbol, &p.Currency, &assetType, &p.Quantity, &uniqueKey); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		p.Custodian = models.Custodian(custodian)
		p.Owner = models.Owner(owner)
		p.Group = models.Group(group)
		p.AssetType = models.AssetType(assetType)
		p.UniqueKey = uniqueKey.String
		if p.AsOfDate, err = parseTime(asOfDate); err != nil {
			return nil, fmt.Errorf("parsing as_of_date %q: %w", asOfDate, err)
		}
		if valueDate.Valid {
			if p.ValueDate, err = parseTime(valueDate.String); err != nil {
				return nil, fmt.Errorf("parsing value_date %q: %w", valueDate.String, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
