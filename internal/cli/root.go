// Package cli implements treasury-cli, a terminal client for the treasury
// reports.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"treasury/internal/api"
	"treasury/internal/config"
	"treasury/internal/format"
	"treasury/internal/log"
	"treasury/internal/services"
	"treasury/internal/session"
)

// options are the flags shared by every subcommand.
type options struct {
	apiURL   string
	token    string
	username string
	password string
	locale   string
	currency string
	timeout  time.Duration
	verbose  bool
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "treasury-cli",
		Short: "Treasury reports from the terminal",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", cfg.APIBaseURL, "treasury API base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("TREASURY_API_TOKEN"), "API token (or TREASURY_API_TOKEN)")
	flags.StringVar(&opts.username, "username", os.Getenv("TREASURY_USERNAME"), "sign in with this user when no token is given")
	flags.StringVar(&opts.password, "password", os.Getenv("TREASURY_PASSWORD"), "password for --username")
	flags.StringVar(&opts.locale, "locale", cfg.CurrencyLocale, "currency locale")
	flags.StringVar(&opts.currency, "currency", cfg.CurrencyCode, "ISO 4217 currency code")
	flags.DurationVar(&opts.timeout, "timeout", cfg.APITimeout, "API request timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log API calls to stderr")

	rootCmd.AddCommand(newKindsCommand())
	rootCmd.AddCommand(newReportCommand(opts))
	rootCmd.AddCommand(newExportCommand(opts))

	return rootCmd
}

// env is what a subcommand needs to talk to the API.
type env struct {
	reports *services.ReportService
	session *session.Session
	logger  *log.Logger
}

func (o *options) logger() *log.Logger {
	if !o.verbose {
		return log.Discard()
	}
	return log.New(log.Config{Level: log.ParseLevel("debug"), Component: log.ComponentCLI, Output: os.Stderr})
}

// connect builds the API client and resolves a token, signing in when only
// credentials were given.
func (o *options) connect(ctx context.Context) (*env, error) {
	cur, err := format.NewCurrency(o.locale, o.currency)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.Config{BaseURL: o.apiURL, Timeout: o.timeout})
	if err != nil {
		return nil, err
	}
	logger := o.logger()

	token := o.token
	if token == "" {
		if o.username == "" || o.password == "" {
			return nil, errors.New("no credentials: pass --token or --username and --password")
		}
		res, err := client.SignIn(ctx, o.username, o.password)
		if err != nil {
			return nil, fmt.Errorf("sign in: %w", err)
		}
		token = res.Token
		logger.InfoContext(ctx, "Signed in", log.FieldUsername, o.username)
	}

	return &env{
		reports: services.NewReportService(client, nil, cur, o.timeout, logger),
		session: &session.Session{ID: "cli", Username: o.username, Token: token},
		logger:  logger,
	}, nil
}
