package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iho/balanceledger/internal/infrastructure/auth"
	"github.com/iho/balanceledger/internal/infrastructure/postgres"
)

type options struct {
	baseURL    string
	token      string
	timeout    time.Duration
	maxRetries uint64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "balanceledger-cli",
		Short:         "Balance ledger CLI tool",
		Long:          `A command line interface for interacting with the balance ledger API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("LEDGER_URL", "http://localhost:8080"), "Base URL of the ledger API")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LEDGER_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().Uint64Var(&opts.maxRetries, "retries", 3, "Retries on conflict or unavailability")

	rootCmd.AddCommand(
		createCmd(opts),
		amountCmd(opts, "deposit"),
		amountCmd(opts, "withdraw"),
		getCmd(opts),
		listCmd(opts),
		historyCmd(opts),
		commandsCmd(opts),
		ledgerCmd(opts),
		tokenCmd(),
		migrateCmd(),
	)

	return rootCmd
}

func createCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create <currency>",
		Short: "Open a zero balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"currency": args[0]}
			return newClient(opts).mutate(cmd, "/api/v1/balances", body)
		},
	}
}

func amountCmd(opts *options, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <balance-id> <amount>",
		Short: "Submit a " + action,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]json.RawMessage{"amount": json.RawMessage(strconv.Quote(args[1]))}
			return newClient(opts).mutate(cmd, "/api/v1/balances/"+url.PathEscape(args[0])+"/"+action, body)
		},
	}
}

func getCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <balance-id>",
		Short: "Show the current version of a balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).get(cmd, "/api/v1/balances/"+url.PathEscape(args[0]), nil)
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List current balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).get(cmd, "/api/v1/balances", pageQuery(limit, offset))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func historyCmd(opts *options) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history <balance-id>",
		Short: "List versions of a balance, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).get(cmd, "/api/v1/balances/"+url.PathEscape(args[0])+"/history", pageQuery(limit, offset))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func commandsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List supported transition commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).get(cmd, "/api/v1/commands", nil)
		},
	}
}

func ledgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).checkConsistency(cmd)
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	var secret, node string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <owner>",
		Short: "Issue a bearer token for owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(args[0], node)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret")
	cmd.Flags().StringVar(&node, "node", os.Getenv("NODE_IDENTITY"), "Issuing node")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func migrateCmd() *cobra.Command {
	var databaseURL, path string
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if down {
				return postgres.RunMigrationsDown(databaseURL, path)
			}
			return postgres.RunMigrations(databaseURL, path)
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL")
	cmd.Flags().StringVar(&path, "path", envOr("MIGRATIONS_PATH", "migrations"), "Migrations directory")
	cmd.Flags().BoolVar(&down, "down", false, "Roll back the last migration")
	return cmd
}

type client struct {
	opts *options
	http *http.Client
}

func newClient(opts *options) *client {
	return &client{opts: opts, http: &http.Client{Timeout: opts.timeout}}
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.Status, e.Body)
}

func (e *apiError) retryable() bool {
	return e.Status == http.StatusConflict || e.Status == http.StatusServiceUnavailable
}

// mutate POSTs body, retrying conflicts and unavailability with exponential
// backoff under one idempotency key.
func (c *client) mutate(cmd *cobra.Command, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	key := uuid.NewString()

	var out []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(contextOf(cmd), http.MethodPost, c.opts.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		out, err = c.do(req)
		var apiErr *apiError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.opts.timeout
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.opts.maxRetries), contextOf(cmd))

	if err := backoff.Retry(operation, policy); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func (c *client) get(cmd *cobra.Command, path string, query url.Values) error {
	u := c.opts.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(contextOf(cmd), http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	out, err := c.do(req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func (c *client) checkConsistency(cmd *cobra.Command) error {
	req, err := http.NewRequestWithContext(contextOf(cmd), http.MethodGet, c.opts.baseURL+"/api/v1/ledger/consistency", nil)
	if err != nil {
		return err
	}

	out, err := c.do(req)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		fmt.Fprintln(cmd.OutOrStdout(), "Consistency check FAILED")
		printJSON(cmd.OutOrStdout(), []byte(apiErr.Body))
		return errors.New("ledger is inconsistent")
	}
	if err != nil {
		return err
	}

	var result struct {
		Balances int `json:"balances"`
		Versions int `json:"versions"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Consistency check PASSED\nBalances: %d\nVersions: %d\n", result.Balances, result.Versions)
	return nil
}

func (c *client) do(req *http.Request) ([]byte, error) {
	if c.opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return body, nil
}

func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func pageQuery(limit, offset int) url.Values {
	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
