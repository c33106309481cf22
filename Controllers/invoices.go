package Controllers

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Mizan/Ledger"
	"Mizan/Models"
	"Mizan/Settlement"
)

// InvoiceController handles invoice-related API endpoints
type InvoiceController struct {
	DB       *gorm.DB
	Engine   *Settlement.Engine
	validate *validator.Validate
}

// NewInvoiceController creates a new InvoiceController
func NewInvoiceController(db *gorm.DB) *InvoiceController {
	return &InvoiceController{
		DB:       db,
		Engine:   Settlement.NewEngine(db),
		validate: validator.New(),
	}
}

// InvoiceResponse is an invoice with its party references resolved to
// display names for listing.
type InvoiceResponse struct {
	Models.Invoice
	SellerName  string `json:"seller_name"`
	SellerEmail string `json:"seller_email"`
	BuyerName   string `json:"buyer_name"`
	BuyerEmail  string `json:"buyer_email"`
	BrokerName  string `json:"broker_name,omitempty"`
}

// CreateInvoice creates a new trade invoice with its forecast ledger rows
// POST /api/invoices
func (c *InvoiceController) CreateInvoice(ctx *fiber.Ctx) error {
	var req Models.CreateInvoiceRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
	}

	if err := c.validate.Struct(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"message": err.Error(),
		})
	}

	createdDate, err := time.Parse("2006-01-02", req.CreatedDate)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid date format",
			"message": "created_date must be in YYYY-MM-DD format",
		})
	}
	dueDate := createdDate
	if req.DueDate != "" {
		dueDate, err = time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid date format",
				"message": "due_date must be in YYYY-MM-DD format",
			})
		}
	}

	invoice, err := c.Engine.CreateInvoice(Settlement.CreateInvoiceInput{
		CompanyID:           req.CompanyID,
		InvoiceType:         req.InvoiceType,
		BillNo:              req.BillNo,
		SellerID:            req.SellerID,
		BuyerID:             req.BuyerID,
		BrokerID:            req.BrokerID,
		BrokeragePercentage: req.BrokeragePercentage,
		BrokerageAmount:     req.BrokerageAmount,
		Items:               req.Items,
		SubTotal:            req.SubTotal,
		Discount:            req.Discount,
		TotalAmount:         req.TotalAmount,
		CreatedDate:         createdDate,
		DueDate:             dueDate,
		Note:                req.Note,
	})
	if err != nil {
		return respondEngineError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Invoice created successfully",
		"data":    invoice,
	})
}

// NextInvoiceNumber previews the number the next invoice will get
// GET /api/invoices/next-number
func (c *InvoiceController) NextInvoiceNumber(ctx *fiber.Ctx) error {
	value, err := Models.PeekInvoiceNumber(c.DB)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Database error",
			"message": err.Error(),
		})
	}
	return ctx.JSON(fiber.Map{"value": value})
}

// ListInvoices retrieves all invoices of a company, newest first
// GET /api/companies/:company_id/invoices
func (c *InvoiceController) ListInvoices(ctx *fiber.Ctx) error {
	companyID, err := strconv.Atoi(ctx.Params("company_id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid company ID"})
	}

	var company Models.Company
	if result := c.DB.First(&company, companyID); result.Error != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Company not found"})
	}

	var invoices []Models.Invoice
	if err := c.DB.Where("company_id = ?", companyID).
		Order("created_date DESC, id DESC").
		Find(&invoices).Error; err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve invoices"})
	}

	parties, err := c.partyLookup(uint(companyID))
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve parties"})
	}

	response := make([]InvoiceResponse, 0, len(invoices))
	for _, invoice := range invoices {
		item := InvoiceResponse{Invoice: invoice}
		if seller, ok := parties[invoice.SellerID]; ok {
			item.SellerName = seller.Name
			item.SellerEmail = seller.Email
		}
		if buyer, ok := parties[invoice.BuyerID]; ok {
			item.BuyerName = buyer.Name
			item.BuyerEmail = buyer.Email
		}
		if invoice.BrokerID != nil {
			if broker, ok := parties[*invoice.BrokerID]; ok {
				item.BrokerName = broker.Name
			}
		}
		response = append(response, item)
	}

	return ctx.JSON(fiber.Map{
		"data":  response,
		"count": len(response),
	})
}

// paymentRow is a ledger row of the invoice detail view with its parties
// resolved.
type paymentRow struct {
	Ledger.Row
	FromName         string `json:"from_name"`
	ToName           string `json:"to_name"`
	CounterpartyID   uint   `json:"counterparty_id"`
	CounterpartyName string `json:"counterparty_name"`
}

// GetInvoiceDetail retrieves an invoice with its ledger rows, newest first
// GET /api/invoices/:id
func (c *InvoiceController) GetInvoiceDetail(ctx *fiber.Ctx) error {
	id, err := strconv.Atoi(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid invoice ID"})
	}

	var invoice Models.Invoice
	if result := c.DB.First(&invoice, id); result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "Invoice not found",
				"message": "The specified invoice does not exist",
			})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Database error",
			"message": result.Error.Error(),
		})
	}

	rows, err := Ledger.RowsForInvoice(c.DB, invoice.ID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Database error",
			"message": err.Error(),
		})
	}

	parties, err := c.partyLookup(invoice.CompanyID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve parties"})
	}

	payments := make([]paymentRow, 0, len(rows))
	for _, row := range rows {
		counterpartyID := Ledger.ResolveCounterparty(row)
		payments = append(payments, paymentRow{
			Row:              row,
			FromName:         parties[row.FromUserID].Name,
			ToName:           parties[row.ToUserID].Name,
			CounterpartyID:   counterpartyID,
			CounterpartyName: parties[counterpartyID].Name,
		})
	}

	return ctx.JSON(fiber.Map{
		"data":     invoice,
		"payments": payments,
	})
}

// DeleteInvoice deletes an invoice and all its ledger rows
// DELETE /api/invoices/:id
func (c *InvoiceController) DeleteInvoice(ctx *fiber.Ctx) error {
	id, err := strconv.Atoi(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid invoice ID"})
	}

	deletedID, err := c.Engine.DeleteInvoice(uint(id))
	if err != nil {
		return respondEngineError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message":            "Invoice deleted successfully",
		"deleted_invoice_id": deletedID,
	})
}

func (c *InvoiceController) partyLookup(companyID uint) (map[uint]Models.Party, error) {
	var parties []Models.Party
	if err := c.DB.Where("company_id = ?", companyID).Find(&parties).Error; err != nil {
		return nil, err
	}
	lookup := make(map[uint]Models.Party, len(parties))
	for _, party := range parties {
		lookup[party.ID] = party
	}
	return lookup, nil
}
