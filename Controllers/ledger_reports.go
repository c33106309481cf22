package Controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Mizan/Ledger"
	"Mizan/Models"
)

// LedgerController handles ledger reporting endpoints. All reads are
// reconstructed from ledger rows by the pure aggregation functions; nothing
// here writes.
type LedgerController struct {
	DB *gorm.DB
}

// NewLedgerController creates a new LedgerController
func NewLedgerController(db *gorm.DB) *LedgerController {
	return &LedgerController{DB: db}
}

// CompanyLedger returns per-party balances and the company summary
// GET /api/companies/:company_id/ledger
func (c *LedgerController) CompanyLedger(ctx *fiber.Ctx) error {
	companyID, err := strconv.Atoi(ctx.Params("company_id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid company ID"})
	}

	var company Models.Company
	if result := c.DB.First(&company, companyID); result.Error != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Company not found"})
	}

	rows, err := Ledger.RowsForCompany(c.DB, uint(companyID))
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Database error",
			"message": err.Error(),
		})
	}

	groups := Ledger.GroupByInvoiceParty(rows)
	balances := Ledger.PartyBalances(groups)
	if err := c.resolvePartyNames(uint(companyID), balances); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve parties"})
	}

	return ctx.JSON(fiber.Map{
		"party_ledger": balances,
		"summary":      Ledger.Summarize(balances),
	})
}

// PartyLedger returns one counterparty's balance with its invoice groups
// GET /api/companies/:company_id/ledger/:party_id
func (c *LedgerController) PartyLedger(ctx *fiber.Ctx) error {
	companyID, err := strconv.Atoi(ctx.Params("company_id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid company ID"})
	}
	partyID, err := strconv.Atoi(ctx.Params("party_id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid party ID"})
	}

	var party Models.Party
	if result := c.DB.First(&party, partyID); result.Error != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Party not found"})
	}
	if party.CompanyID != uint(companyID) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Party not found in this company"})
	}

	rows, err := Ledger.RowsForCompany(c.DB, uint(companyID))
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Database error",
			"message": err.Error(),
		})
	}

	groups := Ledger.GroupByInvoiceParty(rows)
	partyGroups := make([]Ledger.InvoiceGroup, 0)
	for _, g := range groups {
		if g.CounterpartyID == uint(partyID) {
			partyGroups = append(partyGroups, g)
		}
	}

	balances := Ledger.PartyBalances(partyGroups)
	balance := Ledger.PartyBalance{PartyID: uint(partyID)}
	if len(balances) > 0 {
		balance = balances[0]
	}
	balance.PartyName = party.Name
	balance.PartyEmail = party.Email

	return ctx.JSON(balance)
}

func (c *LedgerController) resolvePartyNames(companyID uint, balances []Ledger.PartyBalance) error {
	var parties []Models.Party
	if err := c.DB.Where("company_id = ?", companyID).Find(&parties).Error; err != nil {
		return err
	}
	lookup := make(map[uint]Models.Party, len(parties))
	for _, party := range parties {
		lookup[party.ID] = party
	}
	for i := range balances {
		if party, ok := lookup[balances[i].PartyID]; ok {
			balances[i].PartyName = party.Name
			balances[i].PartyEmail = party.Email
		}
	}
	return nil
}
