package orchestrator

import (
	"sync"

	"github.com/ideaforge/ideaforge/internal/domain"
)

// ─── Result Store ───────────────────────────────────────────────────────────
// In-memory store of completed runs. Holds the last GenerationResult per
// user+feature (what the UI renders) plus derived view state, until the user
// explicitly resets.

// ViewState is the per-result UI state the front end round-trips.
type ViewState struct {
	ActiveTab  string `json:"active_tab"`
	Page       int    `json:"page"`
	Fullscreen bool   `json:"fullscreen"`
}

// StoredRun is one completed run with its input reference and view state.
type StoredRun struct {
	Result    domain.GenerationResult `json:"result"`
	UserID    string                  `json:"user_id"`
	IdeaRef   domain.IdeaInput        `json:"idea_ref"`
	ViewState ViewState               `json:"view_state"`
}

// ResultStore owns completed GenerationResults. The orchestrator owns a
// result only while its run is in flight; on the terminal transition
// ownership moves here.
type ResultStore struct {
	mu     sync.RWMutex
	byRun  map[string]*StoredRun // run ID → run
	latest map[string]string     // userID+"/"+feature → run ID
}

// NewResultStore creates an empty result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		byRun:  make(map[string]*StoredRun),
		latest: make(map[string]string),
	}
}

func key(userID, feature string) string { return userID + "/" + feature }

// Put records a terminal result, replacing any previous result for the same
// user+feature.
func (s *ResultStore) Put(userID string, ideaRef domain.IdeaInput, result domain.GenerationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.latest[key(userID, result.Feature)]; ok {
		delete(s.byRun, prev)
	}
	s.byRun[result.RunID] = &StoredRun{
		Result:  result,
		UserID:  userID,
		IdeaRef: ideaRef,
	}
	s.latest[key(userID, result.Feature)] = result.RunID
}

// Get returns a run by ID.
func (s *ResultStore) Get(runID string) (*StoredRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.byRun[runID]
	if !ok {
		return nil, false
	}
	copied := *run
	return &copied, true
}

// Latest returns the last result for a user+feature.
func (s *ResultStore) Latest(userID, feature string) (*StoredRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runID, ok := s.latest[key(userID, feature)]
	if !ok {
		return nil, false
	}
	run := *s.byRun[runID]
	return &run, true
}

// SetViewState updates the view state for a run. It reports whether the run
// exists.
func (s *ResultStore) SetViewState(runID string, vs ViewState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.byRun[runID]
	if ok {
		run.ViewState = vs
	}
	return ok
}

// Reset clears a run and its derived state, returning the machine to Idle
// for that user+feature. Resetting an already-cleared run is a no-op.
func (s *ResultStore) Reset(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.byRun[runID]
	if !ok {
		return
	}
	delete(s.byRun, runID)
	k := key(run.UserID, run.Result.Feature)
	if s.latest[k] == runID {
		delete(s.latest, k)
	}
}
