package api

// SignInRequest is the login payload.
type SignInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignInResponse is returned by a successful login.
type SignInResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type User struct {
	UserID        int           `json:"userId"`
	Username      string        `json:"username"`
	Active        bool          `json:"active"`
	Role          Role          `json:"role"`
	UserCompanies []UserCompany `json:"userCompanies"`
}

type Role struct {
	RoleID   int    `json:"roleId"`
	RoleName string `json:"roleName"`
}

type UserCompany struct {
	UserID    int     `json:"userId"`
	CompanyID int     `json:"companyId"`
	Company   Company `json:"company"`
}

// DefaultCompany returns the first company the user belongs to.
func (u User) DefaultCompany() (Company, bool) {
	for _, uc := range u.UserCompanies {
		c := uc.Company
		if c.CompanyID == 0 {
			c.CompanyID = uc.CompanyID
		}
		return c, true
	}
	return Company{}, false
}

type Company struct {
	CompanyID   int    `json:"companyId,omitempty"`
	CompanyName string `json:"companyName"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Active      bool   `json:"active"`
}

type Bank struct {
	ID       int    `json:"id"`
	BankName string `json:"bankName"`
}

// AccountType is the numeric account category used by the API.
type AccountType int

const (
	AccountChecking    AccountType = 1
	AccountSavings     AccountType = 2
	AccountBusiness    AccountType = 3
	AccountMoneyMarket AccountType = 4
	AccountTermDeposit AccountType = 5
)

var accountTypeLabels = map[AccountType]string{
	AccountChecking:    "Checking",
	AccountSavings:     "Savings",
	AccountBusiness:    "Business",
	AccountMoneyMarket: "Money Market",
	AccountTermDeposit: "Term Deposit",
}

// AccountTypes lists every account type in display order.
func AccountTypes() []AccountType {
	return []AccountType{AccountChecking, AccountSavings, AccountBusiness, AccountMoneyMarket, AccountTermDeposit}
}

func (t AccountType) String() string {
	if l, ok := accountTypeLabels[t]; ok {
		return l
	}
	return "Unknown"
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	_, ok := accountTypeLabels[t]
	return ok
}

// BankAccount is a bank account as listed by the API.
type BankAccount struct {
	ID           int         `json:"id"`
	BankName     string      `json:"bankName"`
	AccountType  AccountType `json:"accountType"`
	AccountNo    int64       `json:"accountNo"`
	Limit        float64     `json:"limit"`
	InterestRate float64     `json:"interestRate"`
	Balance      float64     `json:"balance"`
	Term         int         `json:"term"`
	CompanyID    int         `json:"companyId"`
	CompanyName  string      `json:"companyName"`
}

// NewBankAccount is the create payload for a bank account.
type NewBankAccount struct {
	BankID       int         `json:"bankId"`
	AccountType  AccountType `json:"accountType"`
	AccountNo    int64       `json:"accountNo"`
	Limit        float64     `json:"limit"`
	InterestRate float64     `json:"interestRate"`
	Balance      float64     `json:"balance"`
	Term         int         `json:"term"`
	CompanyID    int         `json:"companyId"`
}

// TransactionType is Deposit or Withdraw.
type TransactionType string

const (
	Deposit  TransactionType = "Deposit"
	Withdraw TransactionType = "Withdraw"
)

type Transaction struct {
	ID              int             `json:"id"`
	AccountID       int             `json:"accountId"`
	AccountNumber   int64           `json:"accountNumber"`
	TransactionDate string          `json:"transactionDate"`
	TransactionType TransactionType `json:"transactionType"`
	Details         string          `json:"details"`
	Amount          int64           `json:"amount"`
}

// Signed returns the amount with a negative sign for withdrawals.
func (t Transaction) Signed() int64 {
	if t.TransactionType == Withdraw {
		return -t.Amount
	}
	return t.Amount
}

// NewTransaction is the create payload for a transaction.
type NewTransaction struct {
	AccountID       int             `json:"accountId"`
	TransactionDate string          `json:"transactionDate"`
	TransactionType TransactionType `json:"transactionType"`
	Details         string          `json:"details"`
	Amount          int64           `json:"amount"`
}
