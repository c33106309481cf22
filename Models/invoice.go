package Models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	InvoiceTypeBuy  = "buy"
	InvoiceTypeSell = "sell"

	PaymentStatusUnpaid = "Unpaid"
	PaymentStatusPaid   = "Paid"

	BillStatusPending    = "Pending"
	BillStatusInProgress = "In Progress"
	BillStatusComplete   = "Complete"
)

// InvoiceItem is one line of an invoice. Items are stored on the invoice
// as a JSON column, they are never queried individually.
type InvoiceItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	UnitCost    float64 `json:"unit_cost"`
	Quantity    float64 `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

type Invoice struct {
	gorm.Model
	CompanyID   uint   `json:"company_id" gorm:"not null;index"`
	InvoiceNo   int    `json:"invoice_no" gorm:"not null;uniqueIndex"`
	BillNo      string `json:"bill_no" gorm:"not null;uniqueIndex"`
	InvoiceType string `json:"invoice_type" gorm:"type:varchar(10);not null"`

	CreatedDate time.Time `json:"created_date"`
	DueDate     time.Time `json:"due_date"`

	SellerID uint  `json:"seller_id" gorm:"not null;index"`
	BuyerID  uint  `json:"buyer_id" gorm:"not null;index"`
	BrokerID *uint `json:"broker_id" gorm:"index"`

	BrokeragePercentage float64 `json:"brokerage_percentage"`
	BrokerageAmount     float64 `json:"brokerage_amount"`

	Items datatypes.JSON `json:"items"`

	SubTotal    float64 `json:"sub_total"`
	Discount    float64 `json:"discount"`
	TotalAmount float64 `json:"total_amount"`
	PaidAmount  float64 `json:"paid_amount"`
	// DueAmount is the materialized outstanding balance, kept equal to
	// TotalAmount - PaidAmount inside every settlement transaction. Ledger
	// rows carry snapshots of it but are never the source of truth.
	DueAmount float64 `json:"due_amount"`

	PaymentStatus     string     `json:"payment_status" gorm:"type:varchar(10);default:'Unpaid'"`
	BillStatus        string     `json:"bill_status" gorm:"type:varchar(15);default:'Pending'"`
	IsClosed          bool       `json:"is_closed" gorm:"default:false"`
	ClosedPaymentDate *time.Time `json:"closed_payment_date"`
	Note              string     `json:"note"`
}

// CreateInvoiceRequest is the POST /api/invoices body.
type CreateInvoiceRequest struct {
	CompanyID           uint          `json:"company_id" validate:"required"`
	InvoiceType         string        `json:"invoice_type" validate:"required,oneof=buy sell"`
	BillNo              string        `json:"bill_no" validate:"required"`
	SellerID            uint          `json:"seller_id" validate:"required"`
	BuyerID             uint          `json:"buyer_id" validate:"required"`
	BrokerID            *uint         `json:"broker_id"`
	BrokeragePercentage float64       `json:"brokerage_percentage" validate:"gte=0"`
	BrokerageAmount     float64       `json:"brokerage_amount" validate:"gte=0"`
	Items               []InvoiceItem `json:"items"`
	SubTotal            float64       `json:"sub_total" validate:"gte=0"`
	Discount            float64       `json:"discount" validate:"gte=0"`
	TotalAmount         float64       `json:"total_amount" validate:"gte=0"`
	CreatedDate         string        `json:"created_date" validate:"required"`
	DueDate             string        `json:"due_date"`
	Note                string        `json:"note"`
}

// PaymentRequest is the body shared by apply-payment and force-close. The
// amount bounds differ per operation (payments must be positive, a force
// close may be zero) so the engine checks them, not the validator.
type PaymentRequest struct {
	Amount      float64 `json:"amount" validate:"gte=0"`
	CreatedDate string  `json:"created_date"`
	Description string  `json:"description"`
}
