package report

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned by Lookup for an unregistered report slug.
var ErrUnknownKind = errors.New("unknown report kind")

// ColumnFormat selects how a column is rendered.
type ColumnFormat int

const (
	FormatText ColumnFormat = iota
	FormatCurrency
	FormatPercent
	FormatRate
)

// Column is one displayed column of a report.
type Column struct {
	Field  string
	Header string
	Format ColumnFormat
}

// Numeric reports whether the column holds a summable number.
func (c Column) Numeric() bool {
	return c.Format == FormatCurrency || c.Format == FormatPercent
}

// Definition describes one report kind: where to fetch it and how to
// display, total and export it.
type Definition struct {
	Slug      string
	Title     string
	Endpoint  string
	DateParam string
	Grouped   bool
	Columns   []Column
	Totals    []string
	Export    []Column
	Sheet     string
}

const (
	BankUtilization     = "bank-utilization"
	BankTypeUtilization = "bank-type-utilization"
	InterestRate        = "interest-rate"
	InterestRateFlat    = "interest-rate-flat"
	CashFlowLoanAccount = "cash-flow-loan-account"
)

var (
	colBankName       = Column{Field: "bankName", Header: "Bank Name", Format: FormatText}
	colAccountType    = Column{Field: "accountType", Header: "Account Type", Format: FormatText}
	colLimit          = Column{Field: "limit", Header: "Limit", Format: FormatCurrency}
	colBalanceOnDate  = Column{Field: "balanceOnDate", Header: "Balance on Date", Format: FormatCurrency}
	colUtilizePercent = Column{Field: "utilizePercent", Header: "Utilize Percent", Format: FormatPercent}
	colDescription    = Column{Field: "description", Header: "Description", Format: FormatText}
	colInterestRate   = Column{Field: "interestRate", Header: "Interest Rate", Format: FormatRate}
	colTotalLimit     = Column{Field: "totalLimit", Header: "Total Limit", Format: FormatCurrency}
	colBalancePercent = Column{Field: "balancePercent", Header: "Balance Percent", Format: FormatPercent}
	colCompanyName    = Column{Field: "companyName", Header: "Company", Format: FormatText}
	colAccountNo      = Column{Field: "accountNo", Header: "Account No", Format: FormatText}
	colBank           = Column{Field: "bank", Header: "Bank", Format: FormatText}
	colOpening        = Column{Field: "openingBalance", Header: "Opening Balance", Format: FormatCurrency}
	colDeposit        = Column{Field: "deposit", Header: "Deposit", Format: FormatCurrency}
	colWithdrawal     = Column{Field: "withdrawal", Header: "Withdrawal", Format: FormatCurrency}
	colClosing        = Column{Field: "closingBalance", Header: "Closing Balance", Format: FormatCurrency}
)

var definitions = []Definition{
	{
		Slug:      BankUtilization,
		Title:     "Bank Utilization Report",
		Endpoint:  "api/report/getUtilzationbyBank",
		DateParam: "reportDate",
		Columns:   []Column{colBankName, colLimit, colBalanceOnDate, colUtilizePercent},
		Totals:    []string{"limit", "balanceOnDate", "utilizePercent"},
		Export:    []Column{colBankName, colLimit, colBalanceOnDate, colUtilizePercent},
		Sheet:     "Bank Utilization",
	},
	{
		Slug:      BankTypeUtilization,
		Title:     "Bank Type Utilization Report",
		Endpoint:  "api/report/getUtilzationbyBankType",
		DateParam: "reportDate",
		Columns:   []Column{colBankName, colAccountType, colLimit, colBalanceOnDate, colUtilizePercent},
		Totals:    []string{"limit", "balanceOnDate", "utilizePercent"},
		Export:    []Column{colBankName, colAccountType, colLimit, colBalanceOnDate, colUtilizePercent},
		Sheet:     "Trial Balance",
	},
	{
		Slug:      InterestRate,
		Title:     "Interest Rate Report",
		Endpoint:  "api/report/getbyInterestRate",
		DateParam: "reportDate",
		Columns:   []Column{colDescription, colInterestRate, colTotalLimit, colBalanceOnDate, colBalancePercent},
		Totals:    []string{"totalLimit", "balanceOnDate", "balancePercent"},
		Export:    []Column{colDescription, colInterestRate, colTotalLimit, colBalanceOnDate, colBalancePercent},
		Sheet:     "Interest Rate",
	},
	{
		Slug:      InterestRateFlat,
		Title:     "Interest Rate Flat Report",
		Endpoint:  "api/report/getbyIntRateFlat",
		DateParam: "reportDate",
		Columns:   []Column{colInterestRate, colBalanceOnDate, colBalancePercent},
		Totals:    []string{"balanceOnDate", "balancePercent"},
		Export:    []Column{colInterestRate, colBalanceOnDate, colBalancePercent},
		Sheet:     "Interest Rate Flat",
	},
	{
		Slug:      CashFlowLoanAccount,
		Title:     "Cash Flow by Loan Account",
		Endpoint:  "api/report/get-cash-flow-loan-report",
		DateParam: "date",
		Grouped:   true,
		Columns:   []Column{colAccountNo, colBank, colLimit, colInterestRate, colOpening, colDeposit, colWithdrawal, colClosing},
		Totals:    []string{"openingBalance", "deposit", "withdrawal", "closingBalance"},
		Export:    []Column{colCompanyName, colAccountNo, colBank, colLimit, colInterestRate, colOpening, colDeposit, colWithdrawal, colClosing},
		Sheet:     "Cash Flow",
	},
}

var bySlug = func() map[string]Definition {
	m := make(map[string]Definition, len(definitions))
	for _, d := range definitions {
		m[d.Slug] = d
	}
	return m
}()

// Lookup returns the definition registered under slug.
func Lookup(slug string) (Definition, error) {
	d, ok := bySlug[slug]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, slug)
	}
	return d, nil
}

// Definitions returns every report kind in menu order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// ExportFields returns the field names of the export projection.
func (d Definition) ExportFields() []string {
	fields := make([]string, len(d.Export))
	for i, c := range d.Export {
		fields[i] = c.Field
	}
	return fields
}

// IsTotal reports whether field is summed in the totals row.
func (d Definition) IsTotal(field string) bool {
	for _, f := range d.Totals {
		if f == field {
			return true
		}
	}
	return false
}
