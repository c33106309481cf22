package Models

import (
	"gorm.io/gorm"
)

const invoiceSequenceID = 1

// InvoiceSequence is the single counter row backing invoice numbering.
// Numbering is global across companies, matching the historical data, but
// issuance is atomic: the naive read-max-then-write pattern handed out
// duplicate numbers under concurrent creation.
type InvoiceSequence struct {
	ID    uint `gorm:"primarykey"`
	Value int  `gorm:"not null"`
}

// SeedInvoiceSequence makes sure the counter row exists, starting it from
// the highest invoice number already on file.
func SeedInvoiceSequence(db *gorm.DB) error {
	var count int64
	if err := db.Model(&InvoiceSequence{}).Where("id = ?", invoiceSequenceID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	var maxNo int
	if err := db.Model(&Invoice{}).Select("COALESCE(MAX(invoice_no), 0)").Scan(&maxNo).Error; err != nil {
		return err
	}
	return db.Create(&InvoiceSequence{ID: invoiceSequenceID, Value: maxNo}).Error
}

// NextInvoiceNumber increments the counter and returns the new value. Run
// inside the caller's transaction so the number is only consumed when the
// invoice commits. The single-row UPDATE serializes issuance globally.
func NextInvoiceNumber(tx *gorm.DB) (int, error) {
	res := tx.Model(&InvoiceSequence{}).
		Where("id = ?", invoiceSequenceID).
		Update("value", gorm.Expr("value + ?", 1))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		// Counter row missing (fresh database without seeding).
		if err := tx.Create(&InvoiceSequence{ID: invoiceSequenceID, Value: 1}).Error; err != nil {
			return 0, err
		}
		return 1, nil
	}
	var seq InvoiceSequence
	if err := tx.First(&seq, invoiceSequenceID).Error; err != nil {
		return 0, err
	}
	return seq.Value, nil
}

// PeekInvoiceNumber returns the number the next created invoice will get
// without consuming it.
func PeekInvoiceNumber(db *gorm.DB) (int, error) {
	var seq InvoiceSequence
	err := db.First(&seq, invoiceSequenceID).Error
	if err == gorm.ErrRecordNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return seq.Value + 1, nil
}
