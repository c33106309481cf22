package Ledger

import (
	"math"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"Mizan/Models"
)

// ResolveCounterparty returns the party a ledger row's balance is attributed
// to. Brokerage rows always belong to the broker (the payee); otherwise a
// sell invoice tracks the buyer (payer) and a buy invoice the seller (payee).
// This is the single counterparty rule for every read path.
func ResolveCounterparty(r Row) uint {
	if r.EntryType == Models.EntryTypeCreditBrokerage || r.EntryType == Models.EntryTypeDebitBrokerage {
		return r.ToUserID
	}
	if r.InvoiceType == Models.InvoiceTypeSell {
		return r.FromUserID
	}
	return r.ToUserID
}

// ReceivedPortion is the cash this row brought in: payments collected on
// sell invoices and brokerage owed to us as broker.
func ReceivedPortion(r Row) float64 {
	if (r.InvoiceType == Models.InvoiceTypeSell && r.EntryType == Models.EntryTypeCredit) ||
		r.EntryType == Models.EntryTypeCreditBrokerage {
		return r.Amount
	}
	return 0
}

// PaidPortion is the cash this row sent out: payments made on buy invoices
// and brokerage settled to brokers.
func PaidPortion(r Row) float64 {
	if (r.InvoiceType == Models.InvoiceTypeBuy && r.EntryType == Models.EntryTypeDebit) ||
		r.EntryType == Models.EntryTypeDebitBrokerage {
		return r.Amount
	}
	return 0
}

// InvoiceGroup is the (invoice, counterparty) rollup of ledger rows.
// PendingAmount is the snapshot of the latest row in the group, not a sum.
type InvoiceGroup struct {
	InvoiceID      uint    `json:"invoice_id"`
	InvoiceNo      int     `json:"invoice_no"`
	BillNo         string  `json:"bill_no"`
	InvoiceType    string  `json:"invoice_type"`
	CounterpartyID uint    `json:"counterparty_id"`
	ReceivedAmount float64 `json:"received_amount"`
	PaidAmount     float64 `json:"paid_amount"`
	PendingAmount  float64 `json:"pending_amount"`
	HasBrokerage   bool    `json:"has_brokerage"`

	lastAt time.Time
	lastID uint
}

type groupKey struct {
	invoiceID      uint
	counterpartyID uint
}

// GroupByInvoiceParty rolls ledger rows up per (invoice, counterparty).
// The pending snapshot comes from the row with the latest CreatedAt,
// tie-broken on insertion order (entry ID). Output ordering is deterministic
// regardless of input order.
func GroupByInvoiceParty(rows []Row) []InvoiceGroup {
	groups := make(map[groupKey]*InvoiceGroup)
	for _, r := range rows {
		key := groupKey{invoiceID: r.InvoiceID, counterpartyID: ResolveCounterparty(r)}
		g, ok := groups[key]
		if !ok {
			g = &InvoiceGroup{
				InvoiceID:      r.InvoiceID,
				InvoiceNo:      r.InvoiceNo,
				BillNo:         r.BillNo,
				InvoiceType:    r.InvoiceType,
				CounterpartyID: key.counterpartyID,
			}
			groups[key] = g
		}
		g.ReceivedAmount += ReceivedPortion(r)
		g.PaidAmount += PaidPortion(r)
		if r.EntryType == Models.EntryTypeCreditBrokerage || r.EntryType == Models.EntryTypeDebitBrokerage {
			g.HasBrokerage = true
		}
		if r.CreatedAt.After(g.lastAt) || (r.CreatedAt.Equal(g.lastAt) && r.EntryID > g.lastID) {
			g.lastAt = r.CreatedAt
			g.lastID = r.EntryID
			g.PendingAmount = r.PendingAmount
		}
	}

	out := make([]InvoiceGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b InvoiceGroup) int {
		if a.InvoiceNo != b.InvoiceNo {
			return a.InvoiceNo - b.InvoiceNo
		}
		return int(a.CounterpartyID) - int(b.CounterpartyID)
	})
	return out
}

// PartyBalance is the running position of one counterparty across all its
// invoice groups.
type PartyBalance struct {
	PartyID    uint   `json:"party_id"`
	PartyName  string `json:"party_name"`
	PartyEmail string `json:"party_email"`

	TotalTaken       float64 `json:"total_taken"`
	TotalGiven       float64 `json:"total_given"`
	NetBalance       float64 `json:"net_balance"`
	TotalSellPending float64 `json:"total_sell_pending"`
	TotalBuyPending  float64 `json:"total_buy_pending"`
	NetPosition      float64 `json:"net_position"`

	Invoices []InvoiceGroup `json:"invoices"`
}

// PartyBalances rolls invoice groups up per counterparty. Pending amounts on
// sell invoices without brokerage rows count toward what the party owes us;
// buy invoices and brokerage groups count toward what we owe the party.
func PartyBalances(groups []InvoiceGroup) []PartyBalance {
	byParty := make(map[uint]*PartyBalance)
	for _, g := range groups {
		p, ok := byParty[g.CounterpartyID]
		if !ok {
			p = &PartyBalance{PartyID: g.CounterpartyID}
			byParty[g.CounterpartyID] = p
		}
		p.TotalTaken += g.ReceivedAmount
		p.TotalGiven += g.PaidAmount
		if g.InvoiceType == Models.InvoiceTypeSell && !g.HasBrokerage {
			p.TotalSellPending += g.PendingAmount
		} else {
			p.TotalBuyPending += g.PendingAmount
		}
		p.Invoices = append(p.Invoices, g)
	}

	partyIDs := maps.Keys(byParty)
	slices.Sort(partyIDs)
	out := make([]PartyBalance, 0, len(partyIDs))
	for _, id := range partyIDs {
		p := byParty[id]
		p.NetBalance = p.TotalTaken - p.TotalGiven
		p.NetPosition = p.TotalSellPending - p.TotalBuyPending
		out = append(out, *p)
	}
	return out
}

// CompanySummary is the company-wide rollup across all counterparties,
// rounded to two decimals for display.
type CompanySummary struct {
	TotalTaken       float64 `json:"total_taken"`
	TotalGiven       float64 `json:"total_given"`
	NetBalance       float64 `json:"net_balance"`
	TotalSellPending float64 `json:"total_sell_pending"`
	TotalBuyPending  float64 `json:"total_buy_pending"`
	NetPosition      float64 `json:"net_position"`
	PartyCount       int     `json:"party_count"`
}

// Summarize sums party balances into the company summary.
func Summarize(parties []PartyBalance) CompanySummary {
	var s CompanySummary
	for _, p := range parties {
		s.TotalTaken += p.TotalTaken
		s.TotalGiven += p.TotalGiven
		s.TotalSellPending += p.TotalSellPending
		s.TotalBuyPending += p.TotalBuyPending
	}
	s.NetBalance = s.TotalTaken - s.TotalGiven
	s.NetPosition = s.TotalSellPending - s.TotalBuyPending
	s.TotalTaken = Round2(s.TotalTaken)
	s.TotalGiven = Round2(s.TotalGiven)
	s.NetBalance = Round2(s.NetBalance)
	s.TotalSellPending = Round2(s.TotalSellPending)
	s.TotalBuyPending = Round2(s.TotalBuyPending)
	s.NetPosition = Round2(s.NetPosition)
	s.PartyCount = len(parties)
	return s
}

// Round2 rounds to two decimal places for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
