// Package orchestrator runs the credit-metered generation workflow:
// validate input → debit credits → call the generation endpoint with bounded
// retry → validate the artifact shape → best-effort persist → publish the
// terminal result.
//
// The debit always completes before the paid remote call begins. A failed
// generation after a successful debit is NOT refunded automatically: an
// attempt costs credits regardless of outcome. Manual compensation goes
// through the ledger's REFUND entry type.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ideaforge/ideaforge/internal/app/progress"
	"github.com/ideaforge/ideaforge/internal/app/retry"
	"github.com/ideaforge/ideaforge/internal/domain"
	"github.com/ideaforge/ideaforge/internal/infra/observability"
)

// Config controls orchestrator behavior.
type Config struct {
	Retry retry.Policy
}

// DefaultConfig returns the observed workflow defaults: 3 attempts, 2s apart.
func DefaultConfig() Config {
	return Config{Retry: retry.DefaultPolicy()}
}

// Orchestrator sequences the generation state machine. One generic instance
// serves every feature; features differ only by descriptor.
type Orchestrator struct {
	config    Config
	ledger    domain.CreditLedger
	generator domain.Generator
	artifacts domain.ArtifactStore
	ideas     domain.IdeaStore
	features  map[string]domain.Feature
	tracer    *observability.Tracer
	results   *ResultStore
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool // userID+"/"+feature → run in progress
}

// New creates an orchestrator. The feature table is the static cost
// configuration read before every debit.
func New(cfg Config, ledger domain.CreditLedger, gen domain.Generator, artifacts domain.ArtifactStore, ideas domain.IdeaStore, features []domain.Feature, tracer *observability.Tracer, logger *slog.Logger) *Orchestrator {
	table := make(map[string]domain.Feature, len(features))
	for _, f := range features {
		table[f.Name] = f
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:    cfg,
		ledger:    ledger,
		generator: gen,
		artifacts: artifacts,
		ideas:     ideas,
		features:  table,
		tracer:    tracer,
		results:   NewResultStore(),
		logger:    logger,
		inFlight:  make(map[string]bool),
	}
}

// Results returns the result store.
func (o *Orchestrator) Results() *ResultStore { return o.results }

// Features returns the feature catalog.
func (o *Orchestrator) Features() []domain.Feature {
	out := make([]domain.Feature, 0, len(o.features))
	for _, f := range o.features {
		out = append(out, f)
	}
	return out
}

// Run executes one orchestration run to its terminal state.
//
// Pre-flight rejections (unknown feature, invalid input, a run already in
// flight for this user+feature) return an error and create no result and no
// side effects. Everything after a successful start produces a terminal
// GenerationResult — Success or Error — that lands in the result store.
//
// sink receives synthetic progress samples for display; pass nil when no one
// is watching. Progress reaches 100 exactly at the terminal transition.
func (o *Orchestrator) Run(ctx context.Context, principal domain.Principal, featureName string, input domain.IdeaInput, sink progress.Sink) (*domain.GenerationResult, error) {
	feature, ok := o.features[featureName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFeature, featureName)
	}

	// Double-submission guard: one in-flight run per user+feature. Two
	// concurrent runs would each pass a balance check against a stale read;
	// the server-side debit stays atomic either way, but the user should
	// not be double-charged by an accidental double click.
	k := principal.UserID + "/" + featureName
	o.mu.Lock()
	if o.inFlight[k] {
		o.mu.Unlock()
		return nil, domain.ErrRunInFlight
	}
	o.inFlight[k] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.inFlight, k)
		o.mu.Unlock()
	}()

	runID := uuid.NewString()
	ctx = observability.WithTraceID(ctx, runID)
	observability.RunsInFlight.Inc()
	defer observability.RunsInFlight.Dec()

	est := progress.New(sink)
	result := &domain.GenerationResult{
		RunID:     runID,
		Feature:   featureName,
		Status:    domain.RunPending,
		StartedAt: time.Now(),
	}

	// ── Validating ──
	est.SetPhase(domain.PhaseValidating)
	idea, err := o.validate(ctx, input)
	if err != nil {
		// Input errors are recovered locally: no state change, no credits
		// touched, nothing stored.
		est.Stop()
		return nil, err
	}

	// ── Debiting ── always before the paid call (no free generation)
	est.SetPhase(domain.PhaseDebiting)
	span := o.startSpan(ctx, "run.debit", featureName)
	newBalance, err := o.ledger.Debit(ctx, principal.UserID, featureName,
		feature.Cost, feature.Title+" generation")
	o.endSpan(span, err)
	if err != nil {
		observability.DebitRejections.Inc()
		return o.finish(principal, input, est, result, 0, userMessage(err, feature, o.config.Retry.MaxAttempts)), nil
	}
	observability.CreditsDebited.WithLabelValues(featureName).Add(float64(feature.Cost))
	o.logger.Info("credits debited",
		"run_id", runID, "feature", featureName,
		"amount", feature.Cost, "balance", newBalance)

	// ── Generating ── bounded retry against the remote endpoint
	est.SetPhase(domain.PhaseGenerating)
	req := domain.GenerationRequest{
		Feature:       featureName,
		Payload:       buildPayload(feature, idea),
		CostInCredits: feature.Cost,
	}

	policy := o.config.Retry
	policy.OnRetry = func(attempt int, err error) {
		observability.GenerationRetries.WithLabelValues(featureName).Inc()
		o.logger.Warn("generation attempt failed, retrying",
			"run_id", runID, "feature", featureName,
			"attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)
	}

	span = o.startSpan(ctx, "run.generate", featureName)
	artifact, attempts, err := retry.Do(ctx, policy, func(ctx context.Context) (map[string]any, error) {
		return o.generator.Invoke(ctx, req)
	})
	o.endSpan(span, err)
	result.Attempts = attempts
	observability.GenerationAttempts.WithLabelValues(featureName).Observe(float64(attempts))
	if err != nil {
		o.logger.Error("generation failed",
			"run_id", runID, "feature", featureName, "attempts", attempts, "error", err)
		return o.finish(principal, input, est, result, attempts, userMessage(err, feature, policy.MaxAttempts)), nil
	}

	// ── Processing ── transport success is not semantic success
	est.SetPhase(domain.PhaseProcessing)
	if err := validateArtifact(artifact, feature.PayloadKey); err != nil {
		o.logger.Error("artifact validation failed",
			"run_id", runID, "feature", featureName, "error", err)
		return o.finish(principal, input, est, result, attempts, userMessage(err, feature, policy.MaxAttempts)), nil
	}
	result.Artifact = artifact

	// ── Saving ── best-effort; failure never turns Success into Error
	est.SetPhase(domain.PhaseSaving)
	o.save(ctx, principal, feature, idea, artifact, runID)

	// ── Success ──
	result.Status = domain.RunSuccess
	result.FinishedAt = time.Now()
	est.Finish()
	o.results.Put(principal.UserID, input, *result)
	observability.GenerationRuns.WithLabelValues(featureName, string(domain.RunSuccess)).Inc()
	observability.GenerationDuration.WithLabelValues(featureName).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	o.logger.Info("generation succeeded",
		"run_id", runID, "feature", featureName, "attempts", attempts)
	return result, nil
}

// validate resolves the idea input to concrete idea content.
func (o *Orchestrator) validate(ctx context.Context, input domain.IdeaInput) (domain.Idea, error) {
	if err := input.Validate(); err != nil {
		return domain.Idea{}, err
	}
	if input.IdeaID != "" {
		stored, err := o.ideas.GetIdea(ctx, input.IdeaID)
		if err != nil {
			return domain.Idea{}, err
		}
		return *stored, nil
	}
	return domain.Idea{Description: input.CustomText}, nil
}

// finish records a terminal Error result and returns it.
func (o *Orchestrator) finish(principal domain.Principal, input domain.IdeaInput, est *progress.Estimator, result *domain.GenerationResult, attempts int, message string) *domain.GenerationResult {
	result.Status = domain.RunError
	result.Attempts = attempts
	result.ErrorMessage = message
	result.FinishedAt = time.Now()
	est.Finish()
	o.results.Put(principal.UserID, input, *result)
	observability.GenerationRuns.WithLabelValues(result.Feature, string(domain.RunError)).Inc()
	observability.GenerationDuration.WithLabelValues(result.Feature).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	return result
}

// save persists the artifact. Errors are logged and counted, never surfaced:
// showing the user their result outranks durable storage.
func (o *Orchestrator) save(ctx context.Context, principal domain.Principal, feature domain.Feature, idea domain.Idea, artifact map[string]any, runID string) {
	data, err := json.Marshal(artifact)
	if err != nil {
		observability.ArtifactSaveFailures.Inc()
		o.logger.Error("artifact marshal failed", "run_id", runID, "error", err)
		return
	}
	title := feature.Title
	if idea.Title != "" {
		title = feature.Title + ": " + idea.Title
	}
	_, err = o.artifacts.InsertArtifact(ctx, domain.SavedArtifact{
		UserID:      principal.UserID,
		IdeaID:      idea.ID,
		ContentType: feature.Name,
		Title:       title,
		ContentData: string(data),
	})
	if err != nil {
		observability.ArtifactSaveFailures.Inc()
		o.logger.Error("artifact save failed", "run_id", runID, "feature", feature.Name, "error", err)
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, op, feature string) *observability.Span {
	if o.tracer == nil {
		return nil
	}
	return o.tracer.StartSpan(ctx, op, map[string]string{"feature": feature})
}

func (o *Orchestrator) endSpan(span *observability.Span, err error) {
	if o.tracer != nil {
		o.tracer.EndSpan(span, err)
	}
}

// buildPayload derives the remote request payload from the idea.
func buildPayload(feature domain.Feature, idea domain.Idea) map[string]any {
	payload := map[string]any{
		"idea_title":       idea.Title,
		"idea_description": idea.Description,
		"payload_key":      feature.PayloadKey,
	}
	if idea.ID != "" {
		payload["idea_id"] = idea.ID
	}
	return payload
}

// validateArtifact checks the shape contract: the artifact must carry the
// feature's payload key with non-empty content.
func validateArtifact(artifact map[string]any, payloadKey string) error {
	if len(artifact) == 0 {
		return domain.ErrEmptyArtifact
	}
	value, ok := artifact[payloadKey]
	if !ok || value == nil {
		return fmt.Errorf("%w: missing %q", domain.ErrMalformedArtifact, payloadKey)
	}
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			return fmt.Errorf("%w: empty %q", domain.ErrMalformedArtifact, payloadKey)
		}
	case []any:
		if len(v) == 0 {
			return fmt.Errorf("%w: empty %q", domain.ErrMalformedArtifact, payloadKey)
		}
	case string:
		if v == "" {
			return fmt.Errorf("%w: empty %q", domain.ErrMalformedArtifact, payloadKey)
		}
	}
	return nil
}

// userMessage normalizes an internal error into the single user-facing
// string shown at the terminal Error state. Raw errors are only logged.
func userMessage(err error, feature domain.Feature, maxAttempts int) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		return fmt.Sprintf("Insufficient credits: %s requires %d credits.", feature.Title, feature.Cost)
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return "The credit service is temporarily unavailable. Please try again."
	case errors.Is(err, domain.ErrEmptyArtifact), errors.Is(err, domain.ErrMalformedArtifact):
		return "The generator returned an unexpected response. Please try again."
	default:
		return fmt.Sprintf("Generation failed after %d attempts. Please try again later.", maxAttempts)
	}
}
