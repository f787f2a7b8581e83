package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ideaforge/ideaforge/internal/app/orchestrator"
	"github.com/ideaforge/ideaforge/internal/app/retry"
	"github.com/ideaforge/ideaforge/internal/domain"
	"github.com/ideaforge/ideaforge/internal/infra/genclient"
	"github.com/ideaforge/ideaforge/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("idea", "", "Stored idea ID to analyze")
	generateCmd.Flags().String("text", "", "Free-form idea text to analyze")
	generateCmd.Flags().String("user", "local", "User account to charge")
	generateCmd.Flags().Bool("stub", false, "Use the built-in stub generator")
	generateCmd.Flags().StringP("output", "o", "", "Write the artifact JSON to a file")
}

// ─── features ───────────────────────────────────────────────────────────────

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List generation features and their credit costs",
	RunE:  runFeatures,
}

func runFeatures(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	features := cfg.Features
	sort.Slice(features, func(i, j int) bool { return features[i].Name < features[j].Name })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FEATURE\tTITLE\tCOST")
	for _, f := range features {
		fmt.Fprintf(w, "%s\t%s\t%d\n", f.Name, f.Title, f.Cost)
	}
	return w.Flush()
}

// ─── generate ───────────────────────────────────────────────────────────────

var generateCmd = &cobra.Command{
	Use:   "generate FEATURE",
	Short: "Run one credit-metered generation from the command line",
	Long: `Run one generation end to end against the local store: debit credits,
call the generator with bounded retry, and save the artifact.

Provide the idea with exactly one of --idea (a stored idea ID) or --text.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	featureName := args[0]
	ideaID, _ := cmd.Flags().GetString("idea")
	text, _ := cmd.Flags().GetString("text")
	userID, _ := cmd.Flags().GetString("user")
	stub, _ := cmd.Flags().GetBool("stub")
	output, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureAccount(ctx, userID, cfg.Credits.SignupGrant); err != nil {
		return err
	}

	var generator domain.Generator
	if stub || cfg.Generator.Stub {
		generator = &genclient.Stub{}
	} else {
		generator = genclient.New(cfg.Generator.BaseURL, cfg.Generator.APIKey,
			genclient.WithTimeout(cfg.Generator.Timeout.Duration))
	}

	features := make([]domain.Feature, 0, len(cfg.Features))
	for _, f := range cfg.Features {
		features = append(features, domain.Feature{
			Name: f.Name, Title: f.Title, Cost: f.Cost, PayloadKey: f.PayloadKey,
		})
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	orch := orchestrator.New(
		orchestrator.Config{Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay.Duration,
		}},
		db, generator, db, db, features, nil, logger,
	)

	// Render the synthetic progress inline, overwriting one terminal line.
	sink := func(s domain.ProgressSample) {
		fmt.Fprintf(os.Stderr, "\r%3d%%  %-40s", s.Percent, s.PhaseLabel)
	}

	result, err := orch.Run(ctx, domain.Principal{UserID: userID}, featureName,
		domain.IdeaInput{IdeaID: ideaID, CustomText: text}, sink)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if result.Status == domain.RunError {
		return fmt.Errorf("%s", result.ErrorMessage)
	}

	data, err := json.MarshalIndent(result.Artifact, "", "  ")
	if err != nil {
		return err
	}
	if output != "" {
		if err := os.WriteFile(output, data, 0600); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		fmt.Fprintf(os.Stdout, "✅ %s saved to %s (%d attempt(s))\n", featureName, output, result.Attempts)
		return nil
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
