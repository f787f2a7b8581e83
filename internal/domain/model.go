// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"strings"
	"time"
)

// ─── Idea Types ─────────────────────────────────────────────────────────────

// Idea is a venture idea a user wants analyzed. An Idea with an ID references
// a stored idea; an Idea without an ID is an ad-hoc "custom idea" that is
// never persisted as such.
type Idea struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// IsStored reports whether the idea references a persisted record.
func (i Idea) IsStored() bool { return i.ID != "" }

// IsEmpty reports whether the idea carries no usable content.
func (i Idea) IsEmpty() bool {
	return strings.TrimSpace(i.Title) == "" && strings.TrimSpace(i.Description) == ""
}

// IdeaInput is what a client submits to start a generation run: either a
// reference to a stored idea or free-form custom text, never both.
type IdeaInput struct {
	IdeaID     string `json:"idea_id,omitempty"`
	CustomText string `json:"custom_text,omitempty"`
}

// Validate enforces the exactly-one-source rule.
func (in IdeaInput) Validate() error {
	hasRef := in.IdeaID != ""
	hasCustom := strings.TrimSpace(in.CustomText) != ""
	switch {
	case !hasRef && !hasCustom:
		return ErrNoIdeaSelected
	case hasRef && hasCustom:
		return ErrAmbiguousIdeaInput
	}
	return nil
}

// ─── Generation Types ───────────────────────────────────────────────────────

// GenerationRequest is built per invocation and never persisted.
type GenerationRequest struct {
	Feature       string         `json:"feature"`
	Payload       map[string]any `json:"payload"`
	CostInCredits int64          `json:"cost_in_credits"`
}

// RunStatus is the lifecycle status of a generation run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// GenerationResult is the terminal outcome of one orchestration run.
// It is created pending, transitions exactly once to success or error,
// and lives in the result store until replaced or reset.
type GenerationResult struct {
	RunID        string         `json:"run_id"`
	Feature      string         `json:"feature"`
	Status       RunStatus      `json:"status"`
	Artifact     map[string]any `json:"artifact,omitempty"`
	Attempts     int            `json:"attempts"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at,omitempty"`
}

// Phase is a named step of the orchestration state machine. Phases drive
// the progress estimator's display bands.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseDebiting   Phase = "debiting"
	PhaseGenerating Phase = "generating"
	PhaseProcessing Phase = "processing"
	PhaseSaving     Phase = "saving"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool { return p == PhaseSuccess || p == PhaseError }

// ProgressSample is a synthetic progress reading for display only. It has no
// causal relationship to the remote call's real progress.
type ProgressSample struct {
	Percent    int    `json:"percent"`
	PhaseLabel string `json:"phase_label"`
}

// ─── Feature Descriptors ────────────────────────────────────────────────────

// Feature declares one generation tool: its identity, the credits it costs,
// and which key the returned artifact must carry. Twenty-odd nearly identical
// flows differ only by this descriptor.
type Feature struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Cost       int64  `json:"cost"`
	PayloadKey string `json:"payload_key"`
}

// SavedArtifact is a persisted generation result, keyed by user+idea+feature.
type SavedArtifact struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	IdeaID      string    `json:"idea_id,omitempty"`
	ContentType string    `json:"content_type"`
	Title       string    `json:"title"`
	ContentData string    `json:"content_data"`
	CreatedAt   time.Time `json:"created_at"`
}

// ─── Principal ──────────────────────────────────────────────────────────────

// Principal identifies the authenticated caller. Passed explicitly instead of
// threading ambient session state through the call chain.
type Principal struct {
	UserID string `json:"user_id"`
}
