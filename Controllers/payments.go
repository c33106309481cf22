package Controllers

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Mizan/Models"
	"Mizan/Settlement"
)

// PaymentController handles settlement API endpoints
type PaymentController struct {
	Engine   *Settlement.Engine
	validate *validator.Validate
}

// NewPaymentController creates a new PaymentController
func NewPaymentController(db *gorm.DB) *PaymentController {
	return &PaymentController{
		Engine:   Settlement.NewEngine(db),
		validate: validator.New(),
	}
}

// ApplyPayment posts a partial or exact payment against an invoice
// POST /api/invoices/:id/payments
func (c *PaymentController) ApplyPayment(ctx *fiber.Ctx) error {
	id, input, ok := c.parsePaymentRequest(ctx)
	if !ok {
		return nil
	}

	invoice, entry, err := c.Engine.ApplyPayment(id, input)
	if err != nil {
		return respondEngineError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message":      "Payment applied successfully",
		"invoice":      invoice,
		"ledger_entry": entry,
	})
}

// ForceClose settles the remaining due as a discount and closes the invoice
// POST /api/invoices/:id/force-close
func (c *PaymentController) ForceClose(ctx *fiber.Ctx) error {
	id, input, ok := c.parsePaymentRequest(ctx)
	if !ok {
		return nil
	}

	invoice, entries, err := c.Engine.ForceClose(id, input)
	if err != nil {
		return respondEngineError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message":        "Invoice closed successfully",
		"invoice":        invoice,
		"ledger_entries": entries,
	})
}

// parsePaymentRequest parses and validates the shared payment body. On
// failure the response has already been written and ok is false.
func (c *PaymentController) parsePaymentRequest(ctx *fiber.Ctx) (uint, Settlement.PaymentInput, bool) {
	var input Settlement.PaymentInput

	id, err := strconv.Atoi(ctx.Params("id"))
	if err != nil {
		_ = ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid invoice ID"})
		return 0, input, false
	}

	var req Models.PaymentRequest
	if err := ctx.BodyParser(&req); err != nil {
		_ = ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return 0, input, false
	}

	if err := c.validate.Struct(req); err != nil {
		_ = ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"message": err.Error(),
		})
		return 0, input, false
	}

	input.Amount = req.Amount
	input.Description = req.Description

	if req.CreatedDate != "" {
		createdDate, err := time.Parse("2006-01-02", req.CreatedDate)
		if err != nil {
			_ = ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid date format",
				"message": "created_date must be in YYYY-MM-DD format",
			})
			return 0, input, false
		}
		input.CreatedDate = &createdDate
	}

	// Retry-safe clients send an Idempotency-Key header; a replayed key is
	// rejected with a conflict instead of double-posting.
	if key := ctx.Get("Idempotency-Key"); key != "" {
		input.IdempotencyKey = &key
	}

	return uint(id), input, true
}
