package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Input errors — recovered locally, no side effects
	ErrNoIdeaSelected     = errors.New("no idea selected: choose a stored idea or describe a custom one")
	ErrAmbiguousIdeaInput = errors.New("both a stored idea and custom text were provided")
	ErrIdeaNotFound       = errors.New("idea not found")

	// Credit errors
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrLedgerUnavailable   = errors.New("credit ledger is unavailable")
	ErrInvalidAmount       = errors.New("credit amount must be a positive integer")

	// Generation errors
	ErrUnknownFeature    = errors.New("unknown feature")
	ErrEmptyArtifact     = errors.New("generation returned an empty artifact")
	ErrMalformedArtifact = errors.New("generation returned a malformed artifact")
	ErrRunInFlight       = errors.New("a generation run is already in progress for this feature")
	ErrRunNotFound       = errors.New("generation run not found")
)
