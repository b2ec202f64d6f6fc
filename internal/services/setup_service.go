package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"treasury/internal/api"
	"treasury/internal/cache"
	"treasury/internal/log"
	"treasury/internal/session"
)

// LookupTTL is how long bank and company lists are cached per session.
const LookupTTL = 5 * time.Minute

// ValidationError lists the problems with a setup form.
type ValidationError struct {
	Problems map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Problems))
	for field := range e.Problems {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = field + ": " + e.Problems[field]
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// SetupAPI is the part of the API client the setup screens use.
type SetupAPI interface {
	ListCompanies(ctx context.Context, token string) ([]api.Company, error)
	CreateCompany(ctx context.Context, token string, company api.Company) error
	ListBanks(ctx context.Context, token string) ([]api.Bank, error)
	ListBankAccounts(ctx context.Context, token string) ([]api.BankAccount, error)
	CreateBankAccount(ctx context.Context, token string, acct api.NewBankAccount) error
	ListTransactions(ctx context.Context, token string) ([]api.Transaction, error)
	CreateTransaction(ctx context.Context, token string, tx api.NewTransaction) error
}

// SetupService backs the bank account, transaction and company screens.
type SetupService struct {
	api       SetupAPI
	banks     *cache.LRUCache[[]api.Bank]
	companies *cache.LRUCache[[]api.Company]
	logger    *log.Logger
}

func NewSetupService(a SetupAPI, cacheSize int, logger *log.Logger) *SetupService {
	if logger == nil {
		logger = log.Discard()
	}
	return &SetupService{
		api:       a,
		banks:     cache.NewLRUCache[[]api.Bank](cacheSize, LookupTTL),
		companies: cache.NewLRUCache[[]api.Company](cacheSize, LookupTTL),
		logger:    logger.WithComponent(log.ComponentSetup),
	}
}

// Caches exposes the lookup caches for periodic cleanup.
func (s *SetupService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.banks, s.companies}
}

// Forget drops everything cached for a session.
func (s *SetupService) Forget(sessionID string) {
	prefix := sessionID + ":"
	n := s.banks.DeletePrefix(prefix) + s.companies.DeletePrefix(prefix)
	if n > 0 {
		s.logger.Debug("Dropped cached lookups", log.FieldSessionID, sessionID, "entries", n)
	}
}

func (s *SetupService) Banks(ctx context.Context, sess *session.Session) ([]api.Bank, error) {
	return s.banks.GetOrLoad(sess.ID+":banks", func() ([]api.Bank, error) {
		return s.api.ListBanks(ctx, sess.Token)
	})
}

func (s *SetupService) Companies(ctx context.Context, sess *session.Session) ([]api.Company, error) {
	return s.companies.GetOrLoad(sess.ID+":companies", func() ([]api.Company, error) {
		return s.api.ListCompanies(ctx, sess.Token)
	})
}

func (s *SetupService) BankAccounts(ctx context.Context, sess *session.Session) ([]api.BankAccount, error) {
	return s.api.ListBankAccounts(ctx, sess.Token)
}

func (s *SetupService) Transactions(ctx context.Context, sess *session.Session) ([]api.Transaction, error) {
	return s.api.ListTransactions(ctx, sess.Token)
}

// CreateBankAccount validates and submits a new account.
func (s *SetupService) CreateBankAccount(ctx context.Context, sess *session.Session, acct api.NewBankAccount) error {
	problems := map[string]string{}
	if acct.BankID <= 0 {
		problems["bankId"] = "select a bank"
	}
	if !acct.AccountType.Valid() {
		problems["accountType"] = "select an account type"
	}
	if acct.AccountNo <= 0 {
		problems["accountNo"] = "enter the account number"
	}
	if acct.Limit < 0 {
		problems["limit"] = "must not be negative"
	}
	if acct.InterestRate < 0 {
		problems["interestRate"] = "must not be negative"
	}
	if acct.Term < 0 {
		problems["term"] = "must not be negative"
	}
	if acct.CompanyID == 0 {
		acct.CompanyID = sess.CompanyID
	}
	if acct.CompanyID <= 0 {
		problems["companyId"] = "select a company"
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	if err := s.api.CreateBankAccount(ctx, sess.Token, acct); err != nil {
		return fmt.Errorf("create bank account: %w", err)
	}
	s.Forget(sess.ID)
	return nil
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// CreateTransaction validates and submits a new transaction.
func (s *SetupService) CreateTransaction(ctx context.Context, sess *session.Session, tx api.NewTransaction) error {
	problems := map[string]string{}
	if tx.AccountID <= 0 {
		problems["accountId"] = "select an account"
	}
	if tx.TransactionType != api.Deposit && tx.TransactionType != api.Withdraw {
		problems["transactionType"] = "choose Deposit or Withdraw"
	}
	if tx.Amount <= 0 {
		problems["amount"] = "must be a positive whole number"
	}
	if !isoDate.MatchString(tx.TransactionDate) {
		problems["transactionDate"] = "use YYYY-MM-DD"
	} else if _, err := time.Parse(time.DateOnly, tx.TransactionDate); err != nil {
		problems["transactionDate"] = "not a calendar date"
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	if err := s.api.CreateTransaction(ctx, sess.Token, tx); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// CreateCompany validates and submits a new company.
func (s *SetupService) CreateCompany(ctx context.Context, sess *session.Session, c api.Company) error {
	c.CompanyName = strings.TrimSpace(c.CompanyName)
	if c.CompanyName == "" {
		return &ValidationError{Problems: map[string]string{"companyName": "required"}}
	}
	c.Active = true

	if err := s.api.CreateCompany(ctx, sess.Token, c); err != nil {
		return fmt.Errorf("create company: %w", err)
	}
	s.companies.Delete(sess.ID + ":companies")
	return nil
}

// IsValidation reports whether err is a form validation failure.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}
