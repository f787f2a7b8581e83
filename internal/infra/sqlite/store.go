package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ideaforge/ideaforge/internal/domain"
)

// ─── Idea Operations ────────────────────────────────────────────────────────

// InsertIdea stores an idea. Ad-hoc custom ideas never reach this method.
func (db *DB) InsertIdea(ctx context.Context, idea domain.Idea) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO ideas (id, title, description) VALUES (?, ?, ?)
	`, idea.ID, idea.Title, idea.Description)
	return err
}

// GetIdea retrieves a stored idea by ID.
func (db *DB) GetIdea(ctx context.Context, id string) (*domain.Idea, error) {
	var idea domain.Idea
	var createdStr string
	err := db.db.QueryRowContext(ctx, `
		SELECT id, title, description, created_at FROM ideas WHERE id = ?
	`, id).Scan(&idea.ID, &idea.Title, &idea.Description, &createdStr)
	if err == sql.ErrNoRows {
		return nil, domain.ErrIdeaNotFound
	}
	if err != nil {
		return nil, err
	}
	idea.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdStr)
	return &idea, nil
}

// ListIdeas returns stored ideas, newest first.
func (db *DB) ListIdeas(ctx context.Context, limit int) ([]domain.Idea, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, title, description, created_at FROM ideas
		ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ideas []domain.Idea
	for rows.Next() {
		var idea domain.Idea
		var createdStr string
		if err := rows.Scan(&idea.ID, &idea.Title, &idea.Description, &createdStr); err != nil {
			return nil, err
		}
		idea.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdStr)
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// ─── Artifact Operations ────────────────────────────────────────────────────

// InsertArtifact saves a generated artifact. Called best-effort after a
// successful generation; the caller logs failures and moves on.
func (db *DB) InsertArtifact(ctx context.Context, a domain.SavedArtifact) (int64, error) {
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO artifacts (user_id, idea_id, content_type, title, content_data)
		VALUES (?, ?, ?, ?, ?)
	`, a.UserID, a.IdeaID, a.ContentType, a.Title, a.ContentData)
	if err != nil {
		return 0, fmt.Errorf("insert artifact: %w", err)
	}
	return res.LastInsertId()
}

// ArtifactsForUser returns a user's saved artifacts, newest first.
func (db *DB) ArtifactsForUser(ctx context.Context, userID string, limit int) ([]domain.SavedArtifact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, idea_id, content_type, title, content_data, created_at
		FROM artifacts WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SavedArtifact
	for rows.Next() {
		var a domain.SavedArtifact
		var createdStr string
		if err := rows.Scan(&a.ID, &a.UserID, &a.IdeaID, &a.ContentType, &a.Title, &a.ContentData, &createdStr); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdStr)
		out = append(out, a)
	}
	return out, rows.Err()
}
