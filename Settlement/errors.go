package Settlement

import "errors"

// Business errors returned by the engine. Controllers map these onto HTTP
// statuses; anything else coming out of the engine is a persistence failure
// and is surfaced as a server error without retrying.
var (
	ErrCompanyNotFound         = errors.New("company not found")
	ErrInvoiceNotFound         = errors.New("invoice not found")
	ErrPartyNotFound           = errors.New("party not found")
	ErrPartyWrongCompany       = errors.New("party does not belong to this company")
	ErrSameSellerBuyer         = errors.New("seller and buyer must be different parties")
	ErrDuplicateBillNo         = errors.New("bill number already exists")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrAlreadyClosed           = errors.New("invoice is already closed")
	ErrExceedsDue              = errors.New("amount exceeds due amount")
	ErrNothingDue              = errors.New("invoice has no outstanding due amount")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)
