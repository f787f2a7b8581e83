package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ideaforge/ideaforge/internal/domain"
	"github.com/ideaforge/ideaforge/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(ideasCmd)
	ideasCmd.AddCommand(ideasAddCmd)
	ideasCmd.AddCommand(ideasListCmd)

	ideasAddCmd.Flags().StringP("description", "d", "", "Longer idea description")
}

var ideasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "Manage stored business ideas",
}

// ─── ideas add ──────────────────────────────────────────────────────────────

var ideasAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Store a business idea",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIdeasAdd,
}

func runIdeasAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	description, _ := cmd.Flags().GetString("description")
	idea := domain.Idea{
		ID:          uuid.NewString(),
		Title:       strings.Join(args, " "),
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := db.InsertIdea(context.Background(), idea); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✅ Idea stored: %s\n", idea.ID)
	fmt.Fprintf(os.Stdout, "   Analyze with: ideaforge generate <feature> --idea %s\n", idea.ID)
	return nil
}

// ─── ideas list ─────────────────────────────────────────────────────────────

var ideasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored ideas",
	RunE:  runIdeasList,
}

func runIdeasList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ideas, err := db.ListIdeas(context.Background(), 100)
	if err != nil {
		return err
	}
	if len(ideas) == 0 {
		fmt.Fprintln(os.Stdout, "No ideas stored.")
		fmt.Fprintln(os.Stdout, "Use 'ideaforge ideas add \"My idea\"' to store one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tTITLE")
	for _, idea := range ideas {
		fmt.Fprintf(w, "%s\t%s\t%s\n", idea.ID, idea.CreatedAt.Format(time.DateOnly), idea.Title)
	}
	return w.Flush()
}
