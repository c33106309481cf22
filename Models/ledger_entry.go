package Models

import (
	"time"

	"gorm.io/gorm"
)

// Ledger entry types. Forecast rows ("credit brokerage" and the seed
// debit/credit row at invoice creation) carry Amount = 0; settlement rows
// carry the cash actually moved.
const (
	EntryTypeDebit           = "debit"
	EntryTypeCredit          = "credit"
	EntryTypeCreditBrokerage = "credit brokerage"
	EntryTypeDebitBrokerage  = "debit brokerage"
	EntryTypeDiscount        = "discount"
)

// LedgerEntry is one immutable row of the running ledger. The only revision
// ever applied after insert is the brokerage-forecast correction during a
// force-close (PendingAmount + Description of the earliest "credit brokerage"
// row of the invoice).
type LedgerEntry struct {
	gorm.Model
	CompanyID  uint `json:"company_id" gorm:"not null;index"`
	InvoiceID  uint `json:"invoice_id" gorm:"not null;index"`
	FromUserID uint `json:"from_user_id" gorm:"not null"`
	ToUserID   uint `json:"to_user_id" gorm:"not null"`

	Amount float64 `json:"amount"`
	// PendingAmount is the outstanding balance immediately after this row
	// was posted.
	PendingAmount float64 `json:"pending_amount"`

	EntryType   string    `json:"entry_type" gorm:"type:varchar(20);not null;index"`
	Description string    `json:"description"`
	CreatedDate time.Time `json:"created_date"`

	// IdempotencyKey rejects replayed payment requests. Nullable so seed
	// and discount rows never collide on the unique index.
	IdempotencyKey *string `json:"idempotency_key,omitempty" gorm:"uniqueIndex"`
}

// IsBrokerage reports whether the entry is one of the two brokerage types.
func (e *LedgerEntry) IsBrokerage() bool {
	return e.EntryType == EntryTypeCreditBrokerage || e.EntryType == EntryTypeDebitBrokerage
}
