package Settlement

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Mizan/Models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite shared-cache memory databases need a single writer
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Models.Migrate(db))
	return db
}

type fixture struct {
	company Models.Company
	seller  Models.Party
	buyer   Models.Party
	broker  Models.Party
}

func seedParties(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	f := fixture{company: Models.Company{Name: "Apex Trading"}}
	require.NoError(t, db.Create(&f.company).Error)
	f.seller = Models.Party{CompanyID: f.company.ID, Name: "Sharma Traders", Email: "sharma@example.com"}
	f.buyer = Models.Party{CompanyID: f.company.ID, Name: "Gupta & Sons", Email: "gupta@example.com"}
	f.broker = Models.Party{CompanyID: f.company.ID, Name: "Mehta Brokerage", Email: "mehta@example.com"}
	require.NoError(t, db.Create(&f.seller).Error)
	require.NoError(t, db.Create(&f.buyer).Error)
	require.NoError(t, db.Create(&f.broker).Error)
	return f
}

func sellInvoiceInput(f fixture, billNo string) CreateInvoiceInput {
	return CreateInvoiceInput{
		CompanyID:           f.company.ID,
		InvoiceType:         Models.InvoiceTypeSell,
		BillNo:              billNo,
		SellerID:            f.seller.ID,
		BuyerID:             f.buyer.ID,
		BrokerID:            &f.broker.ID,
		BrokeragePercentage: 5,
		BrokerageAmount:     500,
		SubTotal:            10000,
		TotalAmount:         10000,
		CreatedDate:         time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		DueDate:             time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func invoiceEntries(t *testing.T, db *gorm.DB, invoiceID uint) []Models.LedgerEntry {
	t.Helper()
	var entries []Models.LedgerEntry
	require.NoError(t, db.Where("invoice_id = ?", invoiceID).Order("id ASC").Find(&entries).Error)
	return entries
}

func TestCreateSellInvoiceSeedsForecastRows(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	invoice, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	assert.Equal(t, 1, invoice.InvoiceNo)
	assert.Equal(t, float64(0), invoice.PaidAmount)
	assert.Equal(t, float64(10000), invoice.DueAmount)
	assert.Equal(t, Models.PaymentStatusUnpaid, invoice.PaymentStatus)
	assert.Equal(t, Models.BillStatusPending, invoice.BillStatus)
	assert.False(t, invoice.IsClosed)

	entries := invoiceEntries(t, db, invoice.ID)
	require.Len(t, entries, 2)

	main := entries[0]
	assert.Equal(t, Models.EntryTypeDebit, main.EntryType)
	assert.Equal(t, f.buyer.ID, main.FromUserID)
	assert.Equal(t, f.seller.ID, main.ToUserID)
	assert.Equal(t, float64(0), main.Amount)
	assert.Equal(t, float64(10000), main.PendingAmount)

	brokerage := entries[1]
	assert.Equal(t, Models.EntryTypeCreditBrokerage, brokerage.EntryType)
	assert.Equal(t, f.seller.ID, brokerage.FromUserID)
	assert.Equal(t, f.broker.ID, brokerage.ToUserID)
	assert.Equal(t, float64(0), brokerage.Amount)
	assert.Equal(t, float64(500), brokerage.PendingAmount)
}

func TestCreateBuyInvoiceSeedsForecastRows(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	in := sellInvoiceInput(f, "BILL-001")
	in.InvoiceType = Models.InvoiceTypeBuy
	invoice, err := engine.CreateInvoice(in)
	require.NoError(t, err)

	entries := invoiceEntries(t, db, invoice.ID)
	require.Len(t, entries, 2)

	assert.Equal(t, Models.EntryTypeCredit, entries[0].EntryType)
	assert.Equal(t, f.buyer.ID, entries[0].FromUserID)
	assert.Equal(t, f.seller.ID, entries[0].ToUserID)

	// On a buy invoice the company (the buyer) owes the brokerage
	assert.Equal(t, Models.EntryTypeCreditBrokerage, entries[1].EntryType)
	assert.Equal(t, f.buyer.ID, entries[1].FromUserID)
	assert.Equal(t, f.broker.ID, entries[1].ToUserID)
}

func TestCreateInvoiceWithoutBrokerSkipsForecast(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	in := sellInvoiceInput(f, "BILL-001")
	in.BrokerID = nil
	in.BrokeragePercentage = 0
	in.BrokerageAmount = 0
	invoice, err := engine.CreateInvoice(in)
	require.NoError(t, err)

	entries := invoiceEntries(t, db, invoice.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, Models.EntryTypeDebit, entries[0].EntryType)
}

func TestCreateInvoiceValidation(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)

	otherCompany := Models.Company{Name: "Elsewhere Ltd"}
	require.NoError(t, db.Create(&otherCompany).Error)
	foreignParty := Models.Party{CompanyID: otherCompany.ID, Name: "Stranger"}
	require.NoError(t, db.Create(&foreignParty).Error)

	engine := NewEngine(db)
	_, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(in *CreateInvoiceInput)
		wantErr error
	}{
		{
			name:    "same seller and buyer",
			mutate:  func(in *CreateInvoiceInput) { in.BuyerID = in.SellerID },
			wantErr: ErrSameSellerBuyer,
		},
		{
			name:    "unknown company",
			mutate:  func(in *CreateInvoiceInput) { in.CompanyID = 9999 },
			wantErr: ErrCompanyNotFound,
		},
		{
			name:    "unknown broker",
			mutate:  func(in *CreateInvoiceInput) { id := uint(9999); in.BrokerID = &id },
			wantErr: ErrPartyNotFound,
		},
		{
			name:    "party from another company",
			mutate:  func(in *CreateInvoiceInput) { in.BuyerID = foreignParty.ID },
			wantErr: ErrPartyWrongCompany,
		},
		{
			name:    "duplicate bill number",
			mutate:  func(in *CreateInvoiceInput) {},
			wantErr: ErrDuplicateBillNo,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sellInvoiceInput(f, "BILL-001")
			tt.mutate(&in)
			_, err := engine.CreateInvoice(in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestInvoiceNumbersAreSequential(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	for i := 1; i <= 3; i++ {
		invoice, err := engine.CreateInvoice(sellInvoiceInput(f, fmt.Sprintf("BILL-%03d", i)))
		require.NoError(t, err)
		assert.Equal(t, i, invoice.InvoiceNo)
	}

	next, err := Models.PeekInvoiceNumber(db)
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}

func TestConcurrentInvoiceNumbering(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	const workers = 8
	var wg sync.WaitGroup
	numbers := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			invoice, err := engine.CreateInvoice(sellInvoiceInput(f, fmt.Sprintf("BILL-%03d", i)))
			if err != nil {
				t.Errorf("create invoice %d: %v", i, err)
				return
			}
			numbers <- invoice.InvoiceNo
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	for n := range numbers {
		assert.False(t, seen[n], "invoice number %d issued twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestApplyPaymentFullClosesInvoice(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	when := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	invoice, entry, err := engine.ApplyPayment(created.ID, PaymentInput{Amount: 10000, CreatedDate: &when})
	require.NoError(t, err)

	assert.Equal(t, float64(0), invoice.DueAmount)
	assert.Equal(t, float64(10000), invoice.PaidAmount)
	assert.True(t, invoice.IsClosed)
	assert.Equal(t, Models.PaymentStatusPaid, invoice.PaymentStatus)
	assert.Equal(t, Models.BillStatusComplete, invoice.BillStatus)
	require.NotNil(t, invoice.ClosedPaymentDate)
	assert.True(t, invoice.ClosedPaymentDate.Equal(when))

	assert.Equal(t, Models.EntryTypeCredit, entry.EntryType)
	assert.Equal(t, float64(10000), entry.Amount)
	assert.Equal(t, float64(0), entry.PendingAmount)

	entries := invoiceEntries(t, db, invoice.ID)
	require.Len(t, entries, 4)
	settlement := entries[3]
	assert.Equal(t, Models.EntryTypeDebitBrokerage, settlement.EntryType)
	assert.Equal(t, f.seller.ID, settlement.FromUserID)
	assert.Equal(t, f.broker.ID, settlement.ToUserID)
	assert.Equal(t, float64(500), settlement.Amount)
	assert.Equal(t, float64(0), settlement.PendingAmount)
}

func TestApplyPartialPayments(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	invoice, entry, err := engine.ApplyPayment(created.ID, PaymentInput{Amount: 4000})
	require.NoError(t, err)
	assert.Equal(t, float64(4000), invoice.PaidAmount)
	assert.Equal(t, float64(6000), invoice.DueAmount)
	assert.Equal(t, Models.BillStatusInProgress, invoice.BillStatus)
	assert.False(t, invoice.IsClosed)
	assert.Equal(t, float64(6000), entry.PendingAmount)
	assert.Equal(t, invoice.TotalAmount, invoice.PaidAmount+invoice.DueAmount)

	invoice, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: 6000})
	require.NoError(t, err)
	assert.True(t, invoice.IsClosed)
	assert.Equal(t, float64(0), invoice.DueAmount)

	// The credit rows must sum to the paid amount
	var settled float64
	require.NoError(t, db.Model(&Models.LedgerEntry{}).
		Where("invoice_id = ? AND entry_type IN (?, ?)", created.ID, Models.EntryTypeCredit, Models.EntryTypeDebit).
		Select("COALESCE(SUM(amount), 0)").Scan(&settled).Error)
	assert.Equal(t, invoice.PaidAmount, settled)
}

func TestApplyPaymentRejections(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	_, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: -50})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = engine.ApplyPayment(9999, PaymentInput{Amount: 100})
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	_, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: 10001})
	assert.ErrorIs(t, err, ErrExceedsDue)

	_, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: 10000})
	require.NoError(t, err)

	_, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: 1})
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestApplyPaymentIdempotencyKeyReplay(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	key := "5f0a4a7e-91c3-4f5e-8410-2f5b8df2a001"
	invoice, _, err := engine.ApplyPayment(created.ID, PaymentInput{Amount: 1000, IdempotencyKey: &key})
	require.NoError(t, err)
	assert.Equal(t, float64(1000), invoice.PaidAmount)

	_, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: 1000, IdempotencyKey: &key})
	assert.ErrorIs(t, err, ErrDuplicateIdempotencyKey)

	// The replay must not have touched the invoice
	var reloaded Models.Invoice
	require.NoError(t, db.First(&reloaded, created.ID).Error)
	assert.Equal(t, float64(1000), reloaded.PaidAmount)
	assert.Equal(t, float64(9000), reloaded.DueAmount)
}

func TestForceCloseWithDiscount(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	when := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	invoice, entries, err := engine.ForceClose(created.ID, PaymentInput{Amount: 7000, CreatedDate: &when})
	require.NoError(t, err)

	assert.Equal(t, float64(0), invoice.DueAmount)
	assert.Equal(t, float64(7000), invoice.PaidAmount)
	assert.Equal(t, float64(350), invoice.BrokerageAmount)
	assert.True(t, invoice.IsClosed)
	assert.Equal(t, Models.PaymentStatusPaid, invoice.PaymentStatus)
	assert.Equal(t, Models.BillStatusComplete, invoice.BillStatus)

	require.NotNil(t, entries.Payment)
	assert.Equal(t, Models.EntryTypeCredit, entries.Payment.EntryType)
	assert.Equal(t, float64(7000), entries.Payment.Amount)
	assert.Equal(t, float64(3000), entries.Payment.PendingAmount)

	require.NotNil(t, entries.Discount)
	assert.Equal(t, Models.EntryTypeDiscount, entries.Discount.EntryType)
	assert.Equal(t, float64(3000), entries.Discount.Amount)
	assert.Equal(t, float64(0), entries.Discount.PendingAmount)

	require.NotNil(t, entries.Brokerage)
	assert.Equal(t, Models.EntryTypeDebitBrokerage, entries.Brokerage.EntryType)
	assert.Equal(t, float64(350), entries.Brokerage.Amount)

	// The original forecast row is revised to the recomputed commission
	var forecast Models.LedgerEntry
	require.NoError(t, db.Where("invoice_id = ? AND entry_type = ?", created.ID, Models.EntryTypeCreditBrokerage).
		Order("id ASC").First(&forecast).Error)
	assert.Equal(t, float64(350), forecast.PendingAmount)
	assert.Contains(t, forecast.Description, "revised")
}

func TestForceCloseExactAmountKeepsBrokerage(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	invoice, entries, err := engine.ForceClose(created.ID, PaymentInput{Amount: 10000})
	require.NoError(t, err)

	assert.Equal(t, float64(500), invoice.BrokerageAmount)
	assert.Nil(t, entries.Discount)
	require.NotNil(t, entries.Brokerage)
	assert.Equal(t, float64(500), entries.Brokerage.Amount)

	var discountCount int64
	require.NoError(t, db.Model(&Models.LedgerEntry{}).
		Where("invoice_id = ? AND entry_type = ?", created.ID, Models.EntryTypeDiscount).
		Count(&discountCount).Error)
	assert.Equal(t, int64(0), discountCount)

	var forecast Models.LedgerEntry
	require.NoError(t, db.Where("invoice_id = ? AND entry_type = ?", created.ID, Models.EntryTypeCreditBrokerage).
		Order("id ASC").First(&forecast).Error)
	assert.Equal(t, float64(500), forecast.PendingAmount)
}

func TestForceCloseAfterPartialPayments(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	_, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: 4000})
	require.NoError(t, err)

	invoice, entries, err := engine.ForceClose(created.ID, PaymentInput{Amount: 3000})
	require.NoError(t, err)

	assert.Equal(t, float64(7000), invoice.PaidAmount)
	assert.Equal(t, float64(0), invoice.DueAmount)
	assert.Equal(t, float64(350), invoice.BrokerageAmount)
	require.NotNil(t, entries.Discount)
	assert.Equal(t, float64(3000), entries.Discount.Amount)
}

func TestForceCloseOverpaymentPostsNoDiscount(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	// The final amount is not capped at the due amount
	invoice, entries, err := engine.ForceClose(created.ID, PaymentInput{Amount: 12000})
	require.NoError(t, err)

	assert.Equal(t, float64(12000), invoice.PaidAmount)
	assert.Equal(t, float64(0), invoice.DueAmount)
	assert.Equal(t, float64(500), invoice.BrokerageAmount)
	assert.Nil(t, entries.Discount)
	assert.Equal(t, float64(-2000), entries.Payment.PendingAmount)
}

func TestForceCloseRejections(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)

	_, _, err = engine.ForceClose(9999, PaymentInput{Amount: 100})
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	_, _, err = engine.ForceClose(created.ID, PaymentInput{Amount: -1})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = engine.ForceClose(created.ID, PaymentInput{Amount: 10000})
	require.NoError(t, err)

	_, _, err = engine.ForceClose(created.ID, PaymentInput{Amount: 1})
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestDeleteInvoiceRemovesLedgerRows(t *testing.T) {
	db := newTestDB(t)
	f := seedParties(t, db)
	engine := NewEngine(db)

	created, err := engine.CreateInvoice(sellInvoiceInput(f, "BILL-001"))
	require.NoError(t, err)
	_, _, err = engine.ApplyPayment(created.ID, PaymentInput{Amount: 2500})
	require.NoError(t, err)

	deletedID, err := engine.DeleteInvoice(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deletedID)

	var invoice Models.Invoice
	assert.ErrorIs(t, db.First(&invoice, created.ID).Error, gorm.ErrRecordNotFound)

	var entryCount int64
	require.NoError(t, db.Model(&Models.LedgerEntry{}).Where("invoice_id = ?", created.ID).Count(&entryCount).Error)
	assert.Equal(t, int64(0), entryCount)

	_, err = engine.DeleteInvoice(created.ID)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}
