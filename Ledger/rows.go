package Ledger

import (
	"time"

	"gorm.io/gorm"
)

// Row is one ledger entry joined with the fields of its owning invoice that
// balance reconstruction needs. Fetching typed rows and aggregating in Go
// keeps the reconstruction rules in one testable place instead of scattered
// query pipelines.
type Row struct {
	EntryID       uint      `json:"entry_id"`
	InvoiceID     uint      `json:"invoice_id"`
	CompanyID     uint      `json:"company_id"`
	InvoiceNo     int       `json:"invoice_no"`
	BillNo        string    `json:"bill_no"`
	InvoiceType   string    `json:"invoice_type"`
	FromUserID    uint      `json:"from_user_id"`
	ToUserID      uint      `json:"to_user_id"`
	Amount        float64   `json:"amount"`
	PendingAmount float64   `json:"pending_amount"`
	EntryType     string    `json:"entry_type"`
	Description   string    `json:"description"`
	CreatedDate   time.Time `json:"created_date"`
	CreatedAt     time.Time `json:"created_at"`
}

// RowsForCompany fetches every live ledger row of the company joined with
// its invoice, oldest first.
func RowsForCompany(db *gorm.DB, companyID uint) ([]Row, error) {
	var rows []Row
	err := db.Raw(`
		SELECT
			e.id AS entry_id,
			e.invoice_id,
			e.company_id,
			i.invoice_no,
			i.bill_no,
			i.invoice_type,
			e.from_user_id,
			e.to_user_id,
			e.amount,
			e.pending_amount,
			e.entry_type,
			e.description,
			e.created_date,
			e.created_at
		FROM ledger_entries e
		JOIN invoices i ON i.id = e.invoice_id
		WHERE e.company_id = ?
		AND e.deleted_at IS NULL
		AND i.deleted_at IS NULL
		ORDER BY e.created_at ASC, e.id ASC
	`, companyID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RowsForInvoice fetches the ledger rows of one invoice, newest first, for
// the invoice detail view.
func RowsForInvoice(db *gorm.DB, invoiceID uint) ([]Row, error) {
	var rows []Row
	err := db.Raw(`
		SELECT
			e.id AS entry_id,
			e.invoice_id,
			e.company_id,
			i.invoice_no,
			i.bill_no,
			i.invoice_type,
			e.from_user_id,
			e.to_user_id,
			e.amount,
			e.pending_amount,
			e.entry_type,
			e.description,
			e.created_date,
			e.created_at
		FROM ledger_entries e
		JOIN invoices i ON i.id = e.invoice_id
		WHERE e.invoice_id = ?
		AND e.deleted_at IS NULL
		AND i.deleted_at IS NULL
		ORDER BY e.created_at DESC, e.id DESC
	`, invoiceID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
