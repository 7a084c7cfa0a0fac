package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/goescrow/internal/adapter/http/dto"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/auth"
)

// options are the persistent flags shared by every command.
type options struct {
	baseURL string
	token   string
	timeout time.Duration
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "escrowctl",
		Short:         "GoEscrow operator CLI",
		Long:          `A command line interface for operating the GoEscrow API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the GoEscrow API")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("ESCROW_TOKEN"), "Bearer token (defaults to $ESCROW_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		ledgerCmd(opts),
		financeCmd(opts),
		disputesCmd(opts),
		tokenCmd(),
	)

	return rootCmd
}

func ledgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "consistency",
		Short: "Reconcile cached balances and milestones against the transaction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report dto.ConsistencyResponse
			status, err := opts.get(cmd.Context(), "/api/v1/finance/consistency", &report, http.StatusConflict)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Accounts:   %d/%d reconciled\n", report.ReconciledAccounts, report.TotalAccounts)
			fmt.Fprintf(w, "Milestones: %d checked\n", report.TotalMilestones)

			for _, d := range report.AccountDiscrepancies {
				fmt.Fprintf(w, "  account %s: recorded %s, calculated %s %s\n", d.AccountID, d.RecordedBalance.StringFixed(2), d.CalculatedBalance.StringFixed(2), d.Currency)
			}
			for _, d := range report.MilestoneDiscrepancies {
				fmt.Fprintf(w, "  milestone %s (%s): %s\n", d.MilestoneID, d.Status, strings.Join(d.Problems, "; "))
			}
			for _, d := range report.EscrowDiscrepancies {
				fmt.Fprintf(w, "  escrow %s: balance %s, held %s %s: %s\n", d.AccountID, d.Balance.StringFixed(2), d.Held.StringFixed(2), d.Currency, d.Problem)
			}

			if status == http.StatusConflict || !report.Consistent {
				fmt.Fprintln(w, "Consistency check FAILED")
				return fmt.Errorf("ledger is inconsistent")
			}

			fmt.Fprintln(w, "Consistency check PASSED")
			return nil
		},
	})

	return cmd
}

func financeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finance",
		Short: "Finance reporting",
	}

	var asJSON bool
	dashboard := &cobra.Command{
		Use:   "dashboard",
		Short: "Show escrow totals and open work",
		RunE: func(cmd *cobra.Command, args []string) error {
			var d dto.DashboardResponse
			if _, err := opts.get(cmd.Context(), "/api/v1/finance/dashboard", &d); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return printJSON(w, d)
			}

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CURRENCY\tHELD\tDEPOSITED\tRELEASED\tREFUNDED\tFEES")
			for _, t := range d.Totals {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					t.Currency,
					t.EscrowHeld.StringFixed(2),
					t.Deposited.StringFixed(2),
					t.Released.StringFixed(2),
					t.Refunded.StringFixed(2),
					t.Fees.StringFixed(2),
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(w, "\nPayment requests: %d pending, %d approved\n", d.PendingPaymentRequests, d.ApprovedPaymentRequests)
			fmt.Fprintf(w, "Disputes:         %d open, %d investigating\n", d.OpenDisputes, d.InvestigatingDisputes)
			return nil
		},
	}
	dashboard.Flags().BoolVar(&asJSON, "json", false, "Print the raw dashboard")

	cmd.AddCommand(dashboard)
	return cmd
}

func disputesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disputes",
		Short: "Dispute operations",
	}

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List disputes",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", strings.ToUpper(status))
			}
			q.Set("limit", fmt.Sprint(limit))

			var page dto.PageResponse[dto.DisputeResponse]
			if _, err := opts.get(cmd.Context(), "/api/v1/disputes/?"+q.Encode(), &page); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMILESTONE\tSTATUS\tESCROW\tREASON")
			for _, d := range page.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\n",
					d.ID, d.MilestoneID, d.Status, d.EscrowAmount.StringFixed(2), d.Currency, truncate(d.Reason, 40))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d disputes\n", len(page.Items), page.Total)
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (OPEN, INVESTIGATING, RESOLVED, CANCELLED)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of disputes")

	cmd.AddCommand(list)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development tokens",
	}

	var (
		secret  string
		subject string
		role    string
		ttl     time.Duration
	)
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token for a development actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or $JWT_SECRET is required")
			}

			r := domain.Role(strings.ToLower(role))
			if !r.IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := auth.NewJWTManager(secret, ttl).Generate(&domain.Actor{ID: subject, Role: r})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mint.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret (defaults to $JWT_SECRET)")
	mint.Flags().StringVar(&subject, "subject", "operator-1", "Actor id")
	mint.Flags().StringVar(&role, "role", string(domain.RoleOperator), "Actor role")
	mint.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	cmd.AddCommand(mint)
	return cmd
}

// get fetches path into out. Statuses in accept are decoded like 200.
func (o *options) get(ctx context.Context, path string, out any, accept ...int) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(o.baseURL, "/")+path, nil)
	if err != nil {
		return 0, err
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK && !accepted(resp.StatusCode, accept) {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Message != "" {
				return resp.StatusCode, fmt.Errorf("%s (status %d): %s", apiErr.Error, resp.StatusCode, apiErr.Message)
			}
			return resp.StatusCode, fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp.StatusCode, nil
}

func accepted(status int, accept []int) bool {
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
