package Models

import (
	"gorm.io/gorm"
)

type Company struct {
	gorm.Model
	Name    string  `json:"name" gorm:"not null;uniqueIndex"`
	Parties []Party `json:"parties,omitempty" gorm:"foreignKey:CompanyID"`
}

// Party is a counterparty of the company: a seller, buyer or broker on
// trade invoices. Parties are managed by the directory service; this
// service only reads them to validate invoice references and to resolve
// display names on reports.
type Party struct {
	gorm.Model
	CompanyID uint   `json:"company_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"not null"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}
