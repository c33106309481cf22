package Settlement

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"Mizan/Models"
)

// Engine owns the invoice lifecycle: create with forecast ledger rows, apply
// payments, force-close with discount and brokerage revision, delete. Every
// operation runs as one transaction so invoice fields and ledger rows move
// together or not at all.
type Engine struct {
	DB *gorm.DB
}

// NewEngine creates a new settlement Engine
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{DB: db}
}

// CreateInvoiceInput carries the validated, date-parsed fields of a create
// request into the engine.
type CreateInvoiceInput struct {
	CompanyID           uint
	InvoiceType         string
	BillNo              string
	SellerID            uint
	BuyerID             uint
	BrokerID            *uint
	BrokeragePercentage float64
	BrokerageAmount     float64
	Items               []Models.InvoiceItem
	SubTotal            float64
	Discount            float64
	TotalAmount         float64
	CreatedDate         time.Time
	DueDate             time.Time
	Note                string
}

// PaymentInput carries an apply-payment or force-close request.
type PaymentInput struct {
	Amount         float64
	CreatedDate    *time.Time
	Description    string
	IdempotencyKey *string
}

// ForceCloseEntries holds the ledger rows a force-close posted. Discount is
// nil when the invoice was settled at its exact due amount, Brokerage is nil
// when the invoice has no broker or the revised commission is zero.
type ForceCloseEntries struct {
	Payment   *Models.LedgerEntry `json:"payment"`
	Discount  *Models.LedgerEntry `json:"discount"`
	Brokerage *Models.LedgerEntry `json:"brokerage"`
}

// CreateInvoice validates the parties, assigns the next invoice number and
// persists the invoice together with its forecast ledger rows.
func (e *Engine) CreateInvoice(in CreateInvoiceInput) (*Models.Invoice, error) {
	if in.SellerID == in.BuyerID {
		return nil, ErrSameSellerBuyer
	}

	var company Models.Company
	if err := e.DB.First(&company, in.CompanyID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}

	partyIDs := []uint{in.SellerID, in.BuyerID}
	if in.BrokerID != nil {
		partyIDs = append(partyIDs, *in.BrokerID)
	}
	for _, partyID := range partyIDs {
		var party Models.Party
		if err := e.DB.First(&party, partyID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, ErrPartyNotFound
			}
			return nil, err
		}
		if party.CompanyID != in.CompanyID {
			return nil, ErrPartyWrongCompany
		}
	}

	var count int64
	if err := e.DB.Model(&Models.Invoice{}).Where("bill_no = ?", in.BillNo).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateBillNo
	}

	items, err := json.Marshal(in.Items)
	if err != nil {
		return nil, err
	}

	var invoice *Models.Invoice
	err = e.DB.Transaction(func(tx *gorm.DB) error {
		invoiceNo, err := Models.NextInvoiceNumber(tx)
		if err != nil {
			return err
		}

		invoice = &Models.Invoice{
			CompanyID:           in.CompanyID,
			InvoiceNo:           invoiceNo,
			BillNo:              in.BillNo,
			InvoiceType:         in.InvoiceType,
			CreatedDate:         in.CreatedDate,
			DueDate:             in.DueDate,
			SellerID:            in.SellerID,
			BuyerID:             in.BuyerID,
			BrokerID:            in.BrokerID,
			BrokeragePercentage: in.BrokeragePercentage,
			BrokerageAmount:     in.BrokerageAmount,
			Items:               items,
			SubTotal:            in.SubTotal,
			Discount:            in.Discount,
			TotalAmount:         in.TotalAmount,
			PaidAmount:          0,
			DueAmount:           in.TotalAmount,
			PaymentStatus:       Models.PaymentStatusUnpaid,
			BillStatus:          Models.BillStatusPending,
			Note:                in.Note,
		}
		if err := tx.Create(invoice).Error; err != nil {
			return err
		}

		// Seed forecast rows: the main obligation, amount 0 because no cash
		// has moved yet.
		mainType := Models.EntryTypeDebit
		if in.InvoiceType == Models.InvoiceTypeBuy {
			mainType = Models.EntryTypeCredit
		}
		mainRow := Models.LedgerEntry{
			CompanyID:     in.CompanyID,
			InvoiceID:     invoice.ID,
			FromUserID:    in.BuyerID,
			ToUserID:      in.SellerID,
			Amount:        0,
			PendingAmount: in.TotalAmount,
			EntryType:     mainType,
			Description:   fmt.Sprintf("Invoice #%d issued for %.2f", invoiceNo, in.TotalAmount),
			CreatedDate:   in.CreatedDate,
		}
		if err := tx.Create(&mainRow).Error; err != nil {
			return err
		}

		if in.BrokerID != nil && in.BrokerageAmount > 0 {
			from := in.SellerID
			if in.InvoiceType == Models.InvoiceTypeBuy {
				from = in.BuyerID
			}
			brokerageRow := Models.LedgerEntry{
				CompanyID:     in.CompanyID,
				InvoiceID:     invoice.ID,
				FromUserID:    from,
				ToUserID:      *in.BrokerID,
				Amount:        0,
				PendingAmount: in.BrokerageAmount,
				EntryType:     Models.EntryTypeCreditBrokerage,
				Description:   fmt.Sprintf("Brokerage forecast %.2f (%.2f%%) on invoice #%d", in.BrokerageAmount, in.BrokeragePercentage, invoiceNo),
				CreatedDate:   in.CreatedDate,
			}
			if err := tx.Create(&brokerageRow).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return invoice, nil
}

// ApplyPayment posts a partial or exact payment against an open invoice.
// When the payment clears the full due amount the invoice closes and, with a
// broker on file, the brokerage settlement row is posted in the same
// transaction.
func (e *Engine) ApplyPayment(invoiceID uint, in PaymentInput) (*Models.Invoice, *Models.LedgerEntry, error) {
	if in.Amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var invoice Models.Invoice
	var entry *Models.LedgerEntry
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&invoice, invoiceID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrInvoiceNotFound
			}
			return err
		}
		if err := checkIdempotencyKey(tx, in.IdempotencyKey); err != nil {
			return err
		}
		if invoice.IsClosed {
			return ErrAlreadyClosed
		}
		if in.Amount > invoice.DueAmount {
			return ErrExceedsDue
		}

		when := time.Now()
		if in.CreatedDate != nil {
			when = *in.CreatedDate
		}

		invoice.PaidAmount += in.Amount
		invoice.DueAmount -= in.Amount
		justClosed := invoice.DueAmount == 0
		if justClosed {
			invoice.PaymentStatus = Models.PaymentStatusPaid
			invoice.BillStatus = Models.BillStatusComplete
			invoice.IsClosed = true
			invoice.ClosedPaymentDate = &when
		} else {
			invoice.BillStatus = Models.BillStatusInProgress
		}
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}

		entryType := Models.EntryTypeCredit
		if invoice.InvoiceType == Models.InvoiceTypeBuy {
			entryType = Models.EntryTypeDebit
		}
		description := in.Description
		if description == "" {
			description = fmt.Sprintf("Payment of %.2f against invoice #%d", in.Amount, invoice.InvoiceNo)
		}
		entry = &Models.LedgerEntry{
			CompanyID:      invoice.CompanyID,
			InvoiceID:      invoice.ID,
			FromUserID:     invoice.BuyerID,
			ToUserID:       invoice.SellerID,
			Amount:         in.Amount,
			PendingAmount:  invoice.DueAmount,
			EntryType:      entryType,
			Description:    description,
			CreatedDate:    when,
			IdempotencyKey: in.IdempotencyKey,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		if justClosed && invoice.BrokerID != nil && invoice.BrokerageAmount > 0 {
			if err := tx.Create(brokerageSettlementRow(&invoice, invoice.BrokerageAmount, when)).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &invoice, entry, nil
}

// ForceClose settles an invoice at the given final payment, writing any
// shortfall off as a discount. When a discount is taken on a partially paid
// invoice the brokerage commission is recomputed from the amount actually
// paid and the original forecast row is revised to match.
func (e *Engine) ForceClose(invoiceID uint, in PaymentInput) (*Models.Invoice, *ForceCloseEntries, error) {
	if in.Amount < 0 {
		return nil, nil, ErrInvalidAmount
	}

	var invoice Models.Invoice
	entries := &ForceCloseEntries{}
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&invoice, invoiceID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrInvoiceNotFound
			}
			return err
		}
		if err := checkIdempotencyKey(tx, in.IdempotencyKey); err != nil {
			return err
		}
		if invoice.IsClosed {
			return ErrAlreadyClosed
		}
		if invoice.DueAmount <= 0 {
			return ErrNothingDue
		}

		// The final amount is deliberately not capped at the due amount: an
		// overpayment yields a negative discount and posts no discount row.
		discountAmount := invoice.DueAmount - in.Amount
		updatedPaidAmount := invoice.PaidAmount + in.Amount
		newBrokerageAmount := invoice.BrokerageAmount
		if updatedPaidAmount != invoice.TotalAmount && discountAmount > 0 {
			newBrokerageAmount = updatedPaidAmount * invoice.BrokeragePercentage / 100
		}

		when := time.Now()
		if in.CreatedDate != nil {
			when = *in.CreatedDate
		}

		invoice.DueAmount = 0
		invoice.PaidAmount = updatedPaidAmount
		invoice.IsClosed = true
		invoice.PaymentStatus = Models.PaymentStatusPaid
		invoice.BillStatus = Models.BillStatusComplete
		invoice.ClosedPaymentDate = &when
		invoice.BrokerageAmount = newBrokerageAmount
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}

		entryType := Models.EntryTypeCredit
		if invoice.InvoiceType == Models.InvoiceTypeBuy {
			entryType = Models.EntryTypeDebit
		}
		description := in.Description
		if description == "" {
			description = fmt.Sprintf("Closing payment of %.2f against invoice #%d", in.Amount, invoice.InvoiceNo)
		}
		entries.Payment = &Models.LedgerEntry{
			CompanyID:      invoice.CompanyID,
			InvoiceID:      invoice.ID,
			FromUserID:     invoice.BuyerID,
			ToUserID:       invoice.SellerID,
			Amount:         in.Amount,
			PendingAmount:  discountAmount,
			EntryType:      entryType,
			Description:    description,
			CreatedDate:    when,
			IdempotencyKey: in.IdempotencyKey,
		}
		if err := tx.Create(entries.Payment).Error; err != nil {
			return err
		}

		if discountAmount > 0 {
			entries.Discount = &Models.LedgerEntry{
				CompanyID:     invoice.CompanyID,
				InvoiceID:     invoice.ID,
				FromUserID:    invoice.BuyerID,
				ToUserID:      invoice.SellerID,
				Amount:        discountAmount,
				PendingAmount: 0,
				EntryType:     Models.EntryTypeDiscount,
				Description:   fmt.Sprintf("Discount of %.2f on closing invoice #%d", discountAmount, invoice.InvoiceNo),
				CreatedDate:   when,
			}
			if err := tx.Create(entries.Discount).Error; err != nil {
				return err
			}

			// Revise the earliest brokerage forecast so it matches the
			// recomputed commission.
			var forecast Models.LedgerEntry
			err := tx.Where("invoice_id = ? AND entry_type = ?", invoice.ID, Models.EntryTypeCreditBrokerage).
				Order("id ASC").First(&forecast).Error
			if err == nil {
				updates := map[string]interface{}{
					"pending_amount": newBrokerageAmount,
					"description":    fmt.Sprintf("Brokerage revised to %.2f on closing invoice #%d", newBrokerageAmount, invoice.InvoiceNo),
				}
				if err := tx.Model(&forecast).Updates(updates).Error; err != nil {
					return err
				}
			} else if err != gorm.ErrRecordNotFound {
				return err
			}
		}

		if invoice.BrokerID != nil && newBrokerageAmount > 0 {
			entries.Brokerage = brokerageSettlementRow(&invoice, newBrokerageAmount, when)
			if err := tx.Create(entries.Brokerage).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &invoice, entries, nil
}

// DeleteInvoice removes the invoice and every ledger row posted against it
// in one transaction, so a failure never leaves orphaned rows.
func (e *Engine) DeleteInvoice(invoiceID uint) (uint, error) {
	var invoice Models.Invoice
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&invoice, invoiceID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrInvoiceNotFound
			}
			return err
		}
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&Models.LedgerEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&invoice).Error
	})
	if err != nil {
		return 0, err
	}
	return invoice.ID, nil
}

// brokerageSettlementRow builds the "debit brokerage" row that pays the
// broker out when an invoice closes. The commission is owed by the company's
// own side of the trade: the seller on a sell invoice, the buyer on a buy.
func brokerageSettlementRow(invoice *Models.Invoice, amount float64, when time.Time) *Models.LedgerEntry {
	from := invoice.SellerID
	if invoice.InvoiceType == Models.InvoiceTypeBuy {
		from = invoice.BuyerID
	}
	return &Models.LedgerEntry{
		CompanyID:     invoice.CompanyID,
		InvoiceID:     invoice.ID,
		FromUserID:    from,
		ToUserID:      *invoice.BrokerID,
		Amount:        amount,
		PendingAmount: 0,
		EntryType:     Models.EntryTypeDebitBrokerage,
		Description:   fmt.Sprintf("Brokerage of %.2f settled on invoice #%d", amount, invoice.InvoiceNo),
		CreatedDate:   when,
	}
}

// checkIdempotencyKey rejects a payment whose key has already been consumed
// by a previous ledger row, so client retries can never double-post.
func checkIdempotencyKey(tx *gorm.DB, key *string) error {
	if key == nil || *key == "" {
		return nil
	}
	var count int64
	if err := tx.Model(&Models.LedgerEntry{}).Where("idempotency_key = ?", *key).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateIdempotencyKey
	}
	return nil
}
