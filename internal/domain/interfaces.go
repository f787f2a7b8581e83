package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// CreditLedger is the atomic debit boundary. Either the balance decreases by
// exactly amount and one ledger entry is appended, or neither happens.
type CreditLedger interface {
	// Debit charges credits for a paid feature invocation. It returns the
	// post-debit balance, or ErrInsufficientCredits with no state change.
	Debit(ctx context.Context, userID, feature string, amount int64, description string) (newBalance int64, err error)

	// Grant adds credits (top-up or manual refund) and returns the new balance.
	Grant(ctx context.Context, userID string, amount int64, txType TransactionType, description string) (newBalance int64, err error)

	// Balance returns the current balance for a user.
	Balance(ctx context.Context, userID string) (int64, error)

	// Entries returns recent ledger entries for a user, newest first.
	Entries(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
}

// Generator abstracts the remote generation endpoint: an opaque, potentially
// slow remote procedure with no progress channel, safe to retry.
type Generator interface {
	Invoke(ctx context.Context, req GenerationRequest) (map[string]any, error)
}

// ArtifactStore persists generated artifacts. Writes are best-effort from the
// orchestrator's point of view.
type ArtifactStore interface {
	InsertArtifact(ctx context.Context, a SavedArtifact) (int64, error)
	ArtifactsForUser(ctx context.Context, userID string, limit int) ([]SavedArtifact, error)
}

// IdeaStore persists stored ideas. Custom ideas never pass through it.
type IdeaStore interface {
	InsertIdea(ctx context.Context, idea Idea) error
	GetIdea(ctx context.Context, id string) (*Idea, error)
	ListIdeas(ctx context.Context, limit int) ([]Idea, error)
}
