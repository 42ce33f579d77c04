// verify-db-connection checks that the configured Postgres is reachable and
// that the amount columns are wide enough for 18-decimal integer strings.
package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"go-ledger/internal/config"
)

// amount columns that must hold up to 78 digits (2^256 in base 10).
var amountColumns = []struct {
	table  string
	column string
}{
	{"stake_positions", "amount"},
	{"stake_positions", "total_restaked"},
	{"liquidity_pools", "reserve_base"},
	{"liquidity_pools", "reserve_quote"},
	{"swap_receipts", "amount_in"},
	{"swap_receipts", "amount_out"},
	{"swap_receipts", "fee"},
	{"reward_payouts", "amount"},
}

func main() {
	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dsn := config.AppConfig.Database.DSN
	if dsn == "" {
		log.Fatal("No database DSN configured")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("Connected to database: %s\n", dbName)

	ok := true
	for _, col := range amountColumns {
		var size sql.NullInt64
		err := sqlDB.QueryRow(`
			SELECT character_maximum_length
			FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		`, col.table, col.column).Scan(&size)
		if err != nil {
			fmt.Printf("MISSING  %s.%s (run the server once to migrate)\n", col.table, col.column)
			ok = false
			continue
		}
		if !size.Valid || size.Int64 >= 78 {
			fmt.Printf("OK       %s.%s\n", col.table, col.column)
			continue
		}
		fmt.Printf("TOO SMALL %s.%s: VARCHAR(%d), need >= 78\n", col.table, col.column, size.Int64)
		ok = false
	}

	if !ok {
		log.Fatal("Schema verification failed")
	}
	fmt.Println("Schema verification passed")
}
