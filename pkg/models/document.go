package models

import "time"

type DocumentRole string

const (
	RoleBalanceSheet    DocumentRole = "balance_sheet"
	RoleIncomeStatement DocumentRole = "income_statement"
	RoleCashFlow        DocumentRole = "cash_flow"
	RoleUnknown         DocumentRole = "unknown"
)

// ValidRole reports whether r is one of the known roles (unknown included).
func ValidRole(r DocumentRole) bool {
	switch r {
	case RoleBalanceSheet, RoleIncomeStatement, RoleCashFlow, RoleUnknown:
		return true
	}
	return false
}

// Document is a financial statement supplied as plain text. Role may be empty on
// input; the extraction stage classifies it.
type Document struct {
	ID        string       `json:"id"`
	Filename  string       `json:"filename,omitempty"`
	Role      DocumentRole `json:"role,omitempty"`
	ObjectKey string       `json:"object_key,omitempty"`
	Text      string       `json:"text"`
}

type Address struct {
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// RegistryRecord is the official company registration.
type RegistryRecord struct {
	CNPJ              string     `json:"cnpj"`
	LegalName         string     `json:"legal_name"`
	TradeName         string     `json:"trade_name,omitempty"`
	Status            string     `json:"status"`
	IncorporationDate *time.Time `json:"incorporation_date,omitempty"`
	DeclaredCapital   *float64   `json:"declared_capital,omitempty"`
	MainActivity      string     `json:"main_activity,omitempty"`
	LegalNature       string     `json:"legal_nature,omitempty"`
	Address           Address    `json:"address"`
	Source            string     `json:"source,omitempty"`
}

type SignalCategory string

const (
	SignalNews       SignalCategory = "news"
	SignalLitigation SignalCategory = "litigation"
	SignalOther      SignalCategory = "other"
)

// ExternalSignal is a web search result about the subject.
type ExternalSignal struct {
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Snippet   string         `json:"snippet"`
	Relevance float64        `json:"relevance"`
	Category  SignalCategory `json:"category"`
}
