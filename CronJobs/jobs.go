package CronJobs

import (
	"fmt"
	"log"
	"math"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"Mizan/Models"
)

// LedgerAuditor re-checks the settlement invariants on a schedule and logs
// every violation. It never mutates data; a violation means a bug in the
// engine or a hand-edited row and needs a human.
type LedgerAuditor struct {
	cronScheduler  *cron.Cron
	db             *gorm.DB
	schedule       string
	runImmediately bool
	jobID          cron.EntryID
}

// NewLedgerAuditor creates a new auditor with the given cron schedule
// (seconds field included, e.g. "0 0 2 * * *" = 2:00 AM daily).
func NewLedgerAuditor(db *gorm.DB, schedule string, runImmediately bool) *LedgerAuditor {
	if schedule == "" {
		schedule = "0 0 2 * * *"
	}
	return &LedgerAuditor{
		cronScheduler:  cron.New(cron.WithSeconds()),
		db:             db,
		schedule:       schedule,
		runImmediately: runImmediately,
	}
}

// Start initiates the audit cron job
func (a *LedgerAuditor) Start() error {
	var err error
	a.jobID, err = a.cronScheduler.AddFunc(a.schedule, func() {
		log.Println("Running scheduled ledger audit")
		a.RunAudit()
	})
	if err != nil {
		return fmt.Errorf("error scheduling cron job: %w", err)
	}

	a.cronScheduler.Start()
	log.Printf("Ledger audit scheduler started with schedule %q", a.schedule)

	if a.runImmediately {
		log.Println("Running initial ledger audit")
		a.RunAudit()
	}

	return nil
}

// Stop terminates the auditor
func (a *LedgerAuditor) Stop() {
	if a.cronScheduler != nil {
		a.cronScheduler.Stop()
		log.Println("Ledger audit scheduler stopped")
	}
}

// RunAudit checks every live invoice and returns the number of violations
// found. Each violation is logged with the invoice number and the numbers
// that disagree.
func (a *LedgerAuditor) RunAudit() int {
	violations := 0

	var invoices []Models.Invoice
	if err := a.db.Find(&invoices).Error; err != nil {
		log.Printf("Ledger audit: failed to fetch invoices: %v", err)
		return 0
	}

	type settledRow struct {
		InvoiceID uint
		Settled   float64
	}
	var settled []settledRow
	err := a.db.Raw(`
		SELECT e.invoice_id AS invoice_id, COALESCE(SUM(e.amount), 0) AS settled
		FROM ledger_entries e
		WHERE e.entry_type IN (?, ?)
		AND e.deleted_at IS NULL
		GROUP BY e.invoice_id
	`, Models.EntryTypeCredit, Models.EntryTypeDebit).Scan(&settled).Error
	if err != nil {
		log.Printf("Ledger audit: failed to sum settlement rows: %v", err)
		return 0
	}
	settledByInvoice := make(map[uint]float64, len(settled))
	for _, row := range settled {
		settledByInvoice[row.InvoiceID] = row.Settled
	}

	for _, invoice := range invoices {
		if !almostEqual(invoice.DueAmount+invoice.PaidAmount, invoice.TotalAmount) {
			violations++
			log.Printf("Ledger audit: invoice #%d breaks due+paid==total (due=%.2f paid=%.2f total=%.2f)",
				invoice.InvoiceNo, invoice.DueAmount, invoice.PaidAmount, invoice.TotalAmount)
		}
		if invoice.IsClosed && invoice.DueAmount != 0 {
			violations++
			log.Printf("Ledger audit: closed invoice #%d carries due=%.2f", invoice.InvoiceNo, invoice.DueAmount)
		}
		if !almostEqual(settledByInvoice[invoice.ID], invoice.PaidAmount) {
			violations++
			log.Printf("Ledger audit: invoice #%d ledger rows sum to %.2f but paid_amount is %.2f",
				invoice.InvoiceNo, settledByInvoice[invoice.ID], invoice.PaidAmount)
		}
	}

	log.Printf("Ledger audit completed: %d invoices checked, %d violations", len(invoices), violations)
	return violations
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}
