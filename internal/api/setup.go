package api

import (
	"context"
	"net/http"
)

func (c *Client) ListCompanies(ctx context.Context, token string) ([]Company, error) {
	res, err := doJSON[[]Company](ctx, c, http.MethodGet, "api/company/get-all-companies", token, nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (c *Client) CreateCompany(ctx context.Context, token string, company Company) error {
	_, err := c.do(ctx, http.MethodPost, "api/company/create-company", token, company)
	return err
}

func (c *Client) ListBanks(ctx context.Context, token string) ([]Bank, error) {
	res, err := doJSON[[]Bank](ctx, c, http.MethodGet, "api/banks/get-all-banks", token, nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (c *Client) ListBankAccounts(ctx context.Context, token string) ([]BankAccount, error) {
	res, err := doJSON[[]BankAccount](ctx, c, http.MethodGet, "api/account-main/get-all-account-mains", token, nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (c *Client) CreateBankAccount(ctx context.Context, token string, acct NewBankAccount) error {
	_, err := c.do(ctx, http.MethodPost, "api/account-main/create-account-main", token, acct)
	return err
}

func (c *Client) ListTransactions(ctx context.Context, token string) ([]Transaction, error) {
	res, err := doJSON[[]Transaction](ctx, c, http.MethodGet, "api/transaction/get-all-transactions", token, nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (c *Client) CreateTransaction(ctx context.Context, token string, tx NewTransaction) error {
	_, err := c.do(ctx, http.MethodPost, "api/transaction/create-transaction", token, tx)
	return err
}
