package database

import (
	"database/sql"
	stdlog "log"

	"github.com/lynardsalingujay/lynardme-datafeed/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens the record store database and ensures the canonical record
// tables exist. The unique_key columns are what make ingestion idempotent:
// re-uploading a statement updates rows in place instead of duplicating.
func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Ensuring record store schema", "databasePath", databasePath)
	} else {
		stdlog.Println("Ensuring record store schema for:", databasePath)
	}

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		custodian TEXT NOT NULL,
		owner TEXT NOT NULL,
		record_group TEXT NOT NULL,
		asset_name TEXT,
		transaction_time TEXT NOT NULL,
		value_date TEXT NOT NULL,
		symbol TEXT NOT NULL,
		currency TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		price REAL,
		quantity REAL NOT NULL,
		tax REAL NOT NULL,
		direct_fee REAL NOT NULL,
		indirect_fee REAL,
		net_transaction_value REAL,
		gross_transaction_value REAL,
		description TEXT,
		unique_key TEXT UNIQUE
	);

	CREATE TABLE IF NOT EXISTS cash_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		custodian TEXT NOT NULL,
		owner TEXT NOT NULL,
		record_group TEXT NOT NULL,
		transaction_date TEXT NOT NULL,
		value_date TEXT NOT NULL,
		debit_amount REAL NOT NULL,
		credit_amount REAL NOT NULL,
		balance REAL NOT NULL,
		description TEXT,
		currency TEXT NOT NULL,
		unique_key TEXT UNIQUE
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		custodian TEXT NOT NULL,
		owner TEXT NOT NULL,
		record_group TEXT NOT NULL,
		value_date TEXT,
		as_of_date TEXT NOT NULL,
		symbol TEXT NOT NULL,
		currency TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		quantity REAL NOT NULL,
		unique_key TEXT UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_scope_time
		ON transactions(custodian, owner, record_group, transaction_time);
	CREATE INDEX IF NOT EXISTS idx_cash_movements_scope_date
		ON cash_movements(custodian, owner, record_group, transaction_date);
	CREATE INDEX IF NOT EXISTS idx_positions_scope_asof
		ON positions(custodian, owner, record_group, as_of_date);
	`

	if _, err = DB.Exec(createTableStatement); err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Record store tables ensured/created.")
	} else {
		stdlog.Println("Record store tables ensured/created.")
	}
}
