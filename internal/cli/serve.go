package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideaforge/ideaforge/internal/api"
	"github.com/ideaforge/ideaforge/internal/app/orchestrator"
	"github.com/ideaforge/ideaforge/internal/app/retry"
	"github.com/ideaforge/ideaforge/internal/domain"
	"github.com/ideaforge/ideaforge/internal/infra/genclient"
	"github.com/ideaforge/ideaforge/internal/infra/observability"
	"github.com/ideaforge/ideaforge/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("stub", false, "Use the built-in stub generator (no remote calls)")
	serveCmd.Flags().Bool("trace", false, "Enable the in-process span tracer")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the IdeaForge API server",
	Long: `Start the HTTP API server: generation workflow, credit ledger,
stored ideas, saved artifacts, and the live progress feed.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stub, _ := cmd.Flags().GetBool("stub")
	trace, _ := cmd.Flags().GetBool("trace")

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	var generator domain.Generator
	if stub || cfg.Generator.Stub {
		generator = &genclient.Stub{}
		logger.Info("using stub generator")
	} else {
		generator = genclient.New(cfg.Generator.BaseURL, cfg.Generator.APIKey,
			genclient.WithTimeout(cfg.Generator.Timeout.Duration))
	}

	var tracer *observability.Tracer
	if trace {
		tracer = observability.NewTracer(observability.DefaultTracerConfig())
	}

	features := make([]domain.Feature, 0, len(cfg.Features))
	for _, f := range cfg.Features {
		features = append(features, domain.Feature{
			Name: f.Name, Title: f.Title, Cost: f.Cost, PayloadKey: f.PayloadKey,
		})
	}

	orch := orchestrator.New(
		orchestrator.Config{Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay.Duration,
		}},
		db, generator, db, db, features, tracer, logger,
	)

	srv := api.NewServer(orch, db, db, db, logger)
	srv.SetAccountProvisioner(db, cfg.Credits.SignupGrant)
	if cfg.API.MetricsEnabled {
		srv.EnableMetrics()
	}

	httpServer := &http.Server{
		Addr:    cfg.API.Addr(),
		Handler: srv.Handler(),
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan error, 1)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		done <- httpServer.Shutdown(ctx)
	}()

	logger.Info("ideaforge listening",
		"addr", cfg.API.Addr(), "features", len(features), "db", cfg.DBPath())
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
