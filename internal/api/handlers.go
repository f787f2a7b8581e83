package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ideaforge/ideaforge/internal/app/orchestrator"
	"github.com/ideaforge/ideaforge/internal/domain"
	"github.com/ideaforge/ideaforge/internal/infra/observability"
)

// ─── Generation ─────────────────────────────────────────────────────────────

type generateRequest struct {
	IdeaID     string `json:"idea_id,omitempty"`
	CustomText string `json:"custom_text,omitempty"`
}

// handleGenerate runs one credit-metered generation to its terminal state.
// POST /api/features/{feature}/generate
//
// Pre-flight rejections (bad input, unknown feature, a run already in flight)
// come back as HTTP errors. Once the workflow starts, the response is always
// 200 with the terminal result — Success or Error — because the run itself
// completed, whatever its outcome.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	p := principal(r)
	s.ensureAccount(r, p)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := domain.IdeaInput{IdeaID: req.IdeaID, CustomText: req.CustomText}
	topic := p.UserID + "/" + feature
	sink := s.progressHub.Sink(topic)

	result, err := s.orch.Run(r.Context(), p, feature, input, sink)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	balance, _ := s.ledger.Balance(r.Context(), p.UserID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":  result,
		"balance": balance,
	})
}

// handleLatestRun returns the most recent terminal result for a feature.
// GET /api/features/{feature}/latest
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	p := principal(r)

	run, ok := s.orch.Results().Latest(p.UserID, feature)
	if !ok {
		writeError(w, http.StatusNotFound, "no run for feature "+feature)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleListFeatures returns the feature catalog with credit costs.
// GET /api/features
func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	features := s.orch.Features()
	sort.Slice(features, func(i, j int) bool { return features[i].Name < features[j].Name })
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"features": features,
	})
}

// ─── Run Lifecycle ──────────────────────────────────────────────────────────

// handleGetRun returns a stored run by ID.
// GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.orch.Results().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleResetRun discards a stored run so the feature returns to its idle
// state. Resetting an already-absent run is a no-op, not an error.
// POST /api/runs/{id}/reset
func (s *Server) handleResetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.orch.Results().Reset(id)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleViewState records the result dialog's presentation state (active tab,
// page, fullscreen) so reopening the dialog restores it.
// POST /api/runs/{id}/view-state
func (s *Server) handleViewState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var vs orchestrator.ViewState
	if err := json.NewDecoder(r.Body).Decode(&vs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.orch.Results().SetViewState(id, vs) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// ─── Credits ────────────────────────────────────────────────────────────────

// handleBalance returns the current credit balance.
// GET /api/credits/balance
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	s.ensureAccount(r, p)

	balance, err := s.ledger.Balance(r.Context(), p.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.CreditAccount{UserID: p.UserID, Balance: balance})
}

// handleLedger returns recent ledger entries, newest first.
// GET /api/credits/ledger?limit=50
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.ledger.Entries(r.Context(), p.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

type grantRequest struct {
	Amount      int64  `json:"amount"`
	Type        string `json:"type,omitempty"` // GRANT (default) or REFUND
	Description string `json:"description,omitempty"`
}

// handleGrant adds credits: a purchase top-up or a manual refund.
// POST /api/credits/grant
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	s.ensureAccount(r, p)

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txType := domain.TxGrant
	switch req.Type {
	case "", string(domain.TxGrant):
	case string(domain.TxRefund):
		txType = domain.TxRefund
	default:
		writeError(w, http.StatusBadRequest, "type must be GRANT or REFUND")
		return
	}

	balance, err := s.ledger.Grant(r.Context(), p.UserID, req.Amount, txType, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	observability.CreditsGranted.WithLabelValues(string(txType)).Add(float64(req.Amount))
	writeJSON(w, http.StatusOK, domain.CreditAccount{UserID: p.UserID, Balance: balance})
}

// ─── Ideas & Artifacts ──────────────────────────────────────────────────────

type createIdeaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// handleCreateIdea stores a new business idea.
// POST /api/ideas
func (s *Server) handleCreateIdea(w http.ResponseWriter, r *http.Request) {
	var req createIdeaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	idea := domain.Idea{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}
	if err := s.ideas.InsertIdea(r.Context(), idea); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, idea)
}

// handleListIdeas returns stored ideas, newest first.
// GET /api/ideas
func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.ideas.ListIdeas(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ideas": ideas,
	})
}

// handleGetIdea returns one stored idea.
// GET /api/ideas/{id}
func (s *Server) handleGetIdea(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	idea, err := s.ideas.GetIdea(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// handleListArtifacts returns the user's saved artifacts, newest first.
// GET /api/artifacts
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	artifacts, err := s.artifacts.ArtifactsForUser(r.Context(), p.UserID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"artifacts": artifacts,
	})
}

// ─── Error Mapping ──────────────────────────────────────────────────────────

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoIdeaSelected),
		errors.Is(err, domain.ErrAmbiguousIdeaInput),
		errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownFeature),
		errors.Is(err, domain.ErrIdeaNotFound),
		errors.Is(err, domain.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRunInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrLedgerUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
