package Controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"Mizan/Settlement"
)

// respondEngineError maps engine errors onto HTTP statuses. Persistence
// failures are logged and surfaced as a generic server error; they are never
// retried here because retrying a partially applied settlement risks
// double-posting ledger rows.
func respondEngineError(ctx *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	title := "Database error"

	switch {
	case errors.Is(err, Settlement.ErrInvoiceNotFound),
		errors.Is(err, Settlement.ErrCompanyNotFound),
		errors.Is(err, Settlement.ErrPartyNotFound):
		status, title = fiber.StatusNotFound, "Not found"
	case errors.Is(err, Settlement.ErrDuplicateBillNo),
		errors.Is(err, Settlement.ErrDuplicateIdempotencyKey):
		status, title = fiber.StatusConflict, "Conflict"
	case errors.Is(err, Settlement.ErrAlreadyClosed),
		errors.Is(err, Settlement.ErrExceedsDue),
		errors.Is(err, Settlement.ErrNothingDue):
		status, title = fiber.StatusUnprocessableEntity, "Business rule violation"
	case errors.Is(err, Settlement.ErrInvalidAmount),
		errors.Is(err, Settlement.ErrSameSellerBuyer),
		errors.Is(err, Settlement.ErrPartyWrongCompany):
		status, title = fiber.StatusBadRequest, "Validation failed"
	default:
		log.Printf("settlement persistence error: %v", err)
	}

	return ctx.Status(status).JSON(fiber.Map{
		"error":   title,
		"message": err.Error(),
	})
}
