package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ideaforge/ideaforge/internal/domain"
)

func TestIdeas_InsertGetList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	idea := domain.Idea{
		ID:          uuid.NewString(),
		Title:       "Pet-sitting app",
		Description: "On-demand pet sitting marketplace",
	}
	if err := db.InsertIdea(ctx, idea); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.GetIdea(ctx, idea.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != idea.Title || got.Description != idea.Description {
		t.Errorf("got %+v, want title/description of %+v", got, idea)
	}

	ideas, err := db.ListIdeas(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ideas) != 1 {
		t.Errorf("ideas = %d, want 1", len(ideas))
	}
}

func TestGetIdea_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetIdea(context.Background(), "missing")
	if !errors.Is(err, domain.ErrIdeaNotFound) {
		t.Fatalf("err = %v, want ErrIdeaNotFound", err)
	}
}

func TestArtifacts_InsertAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.InsertArtifact(ctx, domain.SavedArtifact{
		UserID:      "u1",
		IdeaID:      "idea-1",
		ContentType: "market_analysis",
		Title:       "Market Analysis: Pet-sitting app",
		ContentData: `{"market_analysis":{"tam":"$4B"}}`,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 0 {
		t.Error("insert returned id 0")
	}

	arts, err := db.ArtifactsForUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(arts))
	}
	if arts[0].ContentType != "market_analysis" {
		t.Errorf("content type = %q, want market_analysis", arts[0].ContentType)
	}

	// Other users see nothing.
	other, _ := db.ArtifactsForUser(ctx, "u2", 10)
	if len(other) != 0 {
		t.Errorf("artifacts for other user = %d, want 0", len(other))
	}
}
