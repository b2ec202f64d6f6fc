package http

import (
	"errors"
	"net/http"

	"treasury/internal/api"
	"treasury/internal/log"
	"treasury/internal/services"
	"treasury/internal/session"
)

type bankAccountsPage struct {
	*page
	Accounts     []api.BankAccount
	Banks        []api.Bank
	Companies    []api.Company
	AccountTypes []api.AccountType
	Problems     map[string]string
}

type transactionsPage struct {
	*page
	Transactions []api.Transaction
	Accounts     []api.BankAccount
	Types        []api.TransactionType
	Problems     map[string]string
}

// setupFailed handles an API error from a setup call. It returns false when
// the error was handled by redirecting.
func (s *Server) setupFailed(w http.ResponseWriter, r *http.Request, sess *session.Session, err error, msg string) bool {
	if errors.Is(err, api.ErrUnauthorized) {
		s.unauthorized(w, r, sess)
		return false
	}
	s.logger.LogError(r.Context(), msg, err, log.OpList, nil)
	return true
}

func (s *Server) bankAccountsData(r *http.Request, w http.ResponseWriter) (bankAccountsPage, bool) {
	sess := currentSession(r)
	data := bankAccountsPage{
		page:         s.basePage(r, "Bank accounts"),
		AccountTypes: api.AccountTypes(),
	}

	var err error
	if data.Accounts, err = s.setup.BankAccounts(r.Context(), sess); err != nil {
		if !s.setupFailed(w, r, sess, err, "Listing bank accounts failed") {
			return data, false
		}
		data.Error = "Bank accounts could not be loaded"
	}
	if data.Banks, err = s.setup.Banks(r.Context(), sess); err != nil {
		if !s.setupFailed(w, r, sess, err, "Listing banks failed") {
			return data, false
		}
		data.Error = "Banks could not be loaded"
	}
	if data.Companies, err = s.setup.Companies(r.Context(), sess); err != nil {
		if !s.setupFailed(w, r, sess, err, "Listing companies failed") {
			return data, false
		}
		data.Error = "Companies could not be loaded"
	}
	return data, true
}

func (s *Server) handleBankAccounts(w http.ResponseWriter, r *http.Request) {
	data, ok := s.bankAccountsData(r, w)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "setup_accounts.html", data)
}

func (s *Server) handleCreateBankAccount(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request").Write(w)
		return
	}

	problems := map[string]string{}
	acct := api.NewBankAccount{
		BankID:       p.Int("bankId", problems),
		AccountType:  api.AccountType(p.Int("accountType", problems)),
		AccountNo:    p.Int64("accountNo", problems),
		Limit:        p.Float("limit", problems),
		InterestRate: p.Float("interestRate", problems),
		Balance:      p.Float("balance", problems),
		Term:         p.Int("term", problems),
		CompanyID:    p.Int("companyId", problems),
	}

	var err error
	if len(problems) > 0 {
		err = &services.ValidationError{Problems: problems}
	} else {
		err = s.setup.CreateBankAccount(r.Context(), sess, acct)
	}
	if !s.setupWritten(w, r, sess, err, "bank-account", "Bank account created") {
		return
	}

	data, ok := s.bankAccountsData(r, w)
	if !ok {
		return
	}
	if verr, isValidation := services.IsValidation(err); isValidation {
		data.Problems = verr.Problems
		s.respondSetup(w, r, http.StatusUnprocessableEntity, "setup_accounts.html", "bank_account_form", data,
			invalidForm("#bank-account-form"))
		return
	}
	s.respondSetup(w, r, http.StatusOK, "setup_accounts.html", "bank_account_list", data,
		NewHTMXResponse().TriggerSetupCreated("bank-account").TriggerFormReset().TriggerSuccessNotification("Bank account created"))
}

func (s *Server) transactionsData(r *http.Request, w http.ResponseWriter) (transactionsPage, bool) {
	sess := currentSession(r)
	data := transactionsPage{
		page:  s.basePage(r, "Transactions"),
		Types: []api.TransactionType{api.Deposit, api.Withdraw},
	}

	var err error
	if data.Transactions, err = s.setup.Transactions(r.Context(), sess); err != nil {
		if !s.setupFailed(w, r, sess, err, "Listing transactions failed") {
			return data, false
		}
		data.Error = "Transactions could not be loaded"
	}
	if data.Accounts, err = s.setup.BankAccounts(r.Context(), sess); err != nil {
		if !s.setupFailed(w, r, sess, err, "Listing bank accounts failed") {
			return data, false
		}
		data.Error = "Bank accounts could not be loaded"
	}
	return data, true
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	data, ok := s.transactionsData(r, w)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "setup_transactions.html", data)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request").Write(w)
		return
	}

	problems := map[string]string{}
	tx := api.NewTransaction{
		AccountID:       p.Int("accountId", problems),
		TransactionDate: p.Get("transactionDate"),
		TransactionType: api.TransactionType(p.Get("transactionType")),
		Details:         p.Get("details"),
		Amount:          p.Int64("amount", problems),
	}

	var err error
	if len(problems) > 0 {
		err = &services.ValidationError{Problems: problems}
	} else {
		err = s.setup.CreateTransaction(r.Context(), sess, tx)
	}
	if !s.setupWritten(w, r, sess, err, "transaction", "Transaction recorded") {
		return
	}

	data, ok := s.transactionsData(r, w)
	if !ok {
		return
	}
	if verr, isValidation := services.IsValidation(err); isValidation {
		data.Problems = verr.Problems
		s.respondSetup(w, r, http.StatusUnprocessableEntity, "setup_transactions.html", "transaction_form", data,
			invalidForm("#transaction-form"))
		return
	}
	s.respondSetup(w, r, http.StatusOK, "setup_transactions.html", "transaction_list", data,
		NewHTMXResponse().TriggerSetupCreated("transaction").TriggerFormReset().TriggerSuccessNotification("Transaction recorded"))
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request").Write(w)
		return
	}

	c := api.Company{
		CompanyName: p.Get("companyName"),
		Address:     p.Get("address"),
		City:        p.Get("city"),
		Country:     p.Get("country"),
		Phone:       p.Get("phone"),
		Email:       p.Get("email"),
	}
	err := s.setup.CreateCompany(r.Context(), sess, c)
	if !s.setupWritten(w, r, sess, err, "company", "Company created") {
		return
	}
	if verr, isValidation := services.IsValidation(err); isValidation {
		UnprocessableEntityError(verr.Error()).Write(w)
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/setup/bank-accounts", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerSetupCreated("company").
		TriggerFormReset().
		TriggerSuccessNotification("Company " + c.CompanyName + " created").
		Write(w)
}

// setupWritten handles the outcome of a create call other than success and
// validation failures. It returns false once a response was written.
func (s *Server) setupWritten(w http.ResponseWriter, r *http.Request, sess *session.Session, err error, entity, done string) bool {
	if err == nil {
		s.logger.InfoContext(r.Context(), done, log.FieldOperation, log.OpCreate, "entity", entity)
		return true
	}
	if _, isValidation := services.IsValidation(err); isValidation {
		return true
	}
	if errors.Is(err, api.ErrUnauthorized) {
		s.unauthorized(w, r, sess)
		return false
	}
	s.logger.LogError(r.Context(), "Create "+entity+" failed", err, log.OpCreate, nil)
	ErrorResponse(http.StatusBadGateway, "The "+entity+" could not be saved. Please try again.").Write(w)
	return false
}

// invalidForm swaps the re-rendered form over the submitted one instead of
// the list the form normally targets.
func invalidForm(selector string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Header("HX-Retarget", selector).
		Header("HX-Reswap", "outerHTML").
		TriggerNotification(NotificationWarning, "Please correct the highlighted fields", 4000)
}

// respondSetup renders the fragment for HTMX requests and the full page
// otherwise.
func (s *Server) respondSetup(w http.ResponseWriter, r *http.Request, status int, pageName, fragment string, data any, resp *HTMXResponseBuilder) {
	if !isHTMX(r) {
		if status == http.StatusOK {
			http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
			return
		}
		s.render(w, r, status, pageName, data)
		return
	}

	buf, err := s.execute(fragment, data)
	if err != nil {
		s.logger.LogError(r.Context(), "Template execution failed", err, log.OpRender, nil)
		InternalServerError("Could not render the page").Write(w)
		return
	}
	if resp == nil {
		resp = NewHTMXResponse()
	}
	resp.Status(status).Body(buf).Write(w)
}
