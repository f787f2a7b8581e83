package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideaforge/ideaforge/internal/domain"
	"github.com/ideaforge/ideaforge/internal/infra/sqlite"
)

// ─── Credits CLI ────────────────────────────────────────────────────────────
// Direct ledger access against the local store, for inspection and manual
// compensation. The API server exposes the same operations over HTTP.

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsLedgerCmd)
	creditsCmd.AddCommand(creditsGrantCmd)

	creditsCmd.PersistentFlags().String("user", "local", "User account")
	creditsLedgerCmd.Flags().Int("limit", 20, "Number of entries to show")
	creditsGrantCmd.Flags().Bool("refund", false, "Record as a REFUND instead of a GRANT")
	creditsGrantCmd.Flags().String("note", "", "Description stored on the ledger entry")
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and manage the credit ledger",
}

// ─── credits balance ────────────────────────────────────────────────────────

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the current credit balance",
	RunE:  runCreditsBalance,
}

func runCreditsBalance(cmd *cobra.Command, args []string) error {
	db, userID, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	balance, err := db.Balance(context.Background(), userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %d credits\n", userID, balance)
	return nil
}

// ─── credits ledger ─────────────────────────────────────────────────────────

var creditsLedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show recent ledger entries, newest first",
	RunE:  runCreditsLedger,
}

func runCreditsLedger(cmd *cobra.Command, args []string) error {
	db, userID, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := db.Entries(context.Background(), userID, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "No ledger entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTYPE\tAMOUNT\tBALANCE\tDETAIL")
	for _, e := range entries {
		sign := "+"
		if e.EntryType == domain.EntryDebit {
			sign = "-"
		}
		detail := e.Description
		if e.Feature != "" {
			detail = e.Feature
		}
		fmt.Fprintf(w, "%s\t%s\t%s%d\t%d\t%s\n",
			e.Timestamp.Format(time.DateTime), e.Type, sign, e.Amount, e.Balance, detail)
	}
	return w.Flush()
}

// ─── credits grant ──────────────────────────────────────────────────────────

var creditsGrantCmd = &cobra.Command{
	Use:   "grant AMOUNT",
	Short: "Add credits to an account",
	Long: `Add credits to an account: a purchase top-up, or with --refund a manual
compensation for a failed run. Failed generation attempts are never refunded
automatically; this command is the operator's escape hatch.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreditsGrant,
}

func runCreditsGrant(cmd *cobra.Command, args []string) error {
	var amount int64
	if _, err := fmt.Sscanf(args[0], "%d", &amount); err != nil {
		return fmt.Errorf("invalid amount %q", args[0])
	}

	db, userID, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	refund, _ := cmd.Flags().GetBool("refund")
	note, _ := cmd.Flags().GetString("note")
	txType := domain.TxGrant
	if refund {
		txType = domain.TxRefund
	}

	balance, err := db.Grant(context.Background(), userID, amount, txType, note)
	if err != nil {
		return err
	}
	verb := "Granted"
	if refund {
		verb = "Refunded"
	}
	fmt.Fprintf(os.Stdout, "✅ %s %d credits to %s (balance now %d)\n", verb, amount, userID, balance)
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// openLedger opens the local store and resolves the target user.
func openLedger(cmd *cobra.Command) (*sqlite.DB, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		userID = "local"
	}
	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return nil, "", fmt.Errorf("open store: %w", err)
	}
	if err := db.EnsureAccount(context.Background(), userID, cfg.Credits.SignupGrant); err != nil {
		db.Close()
		return nil, "", err
	}
	return db, userID, nil
}
