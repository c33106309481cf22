package Models

import (
	"log"
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Connect() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "database.db"
	}

	connection, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	DB = connection

	if err := Migrate(DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
}

// Migrate runs AutoMigrate in dependency order and seeds the invoice
// counter from existing data.
func Migrate(db *gorm.DB) error {
	// 1. Directory entities, no dependencies
	if err := db.AutoMigrate(
		&Company{},
		&Party{},
	); err != nil {
		return err
	}

	// 2. Invoices depend on companies and parties
	if err := db.AutoMigrate(&Invoice{}); err != nil {
		return err
	}

	// 3. Ledger rows depend on invoices
	if err := db.AutoMigrate(
		&LedgerEntry{},
		&InvoiceSequence{},
	); err != nil {
		return err
	}

	return SeedInvoiceSequence(db)
}
