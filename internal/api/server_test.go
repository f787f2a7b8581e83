package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ideaforge/ideaforge/internal/app/orchestrator"
	"github.com/ideaforge/ideaforge/internal/app/retry"
	"github.com/ideaforge/ideaforge/internal/domain"
	"github.com/ideaforge/ideaforge/internal/infra/genclient"
	"github.com/ideaforge/ideaforge/internal/infra/sqlite"
)

var apiTestFeatures = []domain.Feature{
	{Name: "market_analysis", Title: "Market Analysis", Cost: 2, PayloadKey: "market_analysis"},
	{Name: "swot_analysis", Title: "SWOT Analysis", Cost: 1, PayloadKey: "swot"},
}

// newTestServer wires the real sqlite layer and the stub generator behind the
// HTTP API.
func newTestServer(t *testing.T, signupGrant int64) *httptest.Server {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "ideaforge.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := orchestrator.New(
		orchestrator.Config{Retry: retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}},
		db, &genclient.Stub{}, db, db, apiTestFeatures, nil, logger,
	)

	srv := NewServer(orch, db, db, db, logger)
	srv.SetAccountProvisioner(db, signupGrant)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 10)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestListFeatures(t *testing.T) {
	ts := newTestServer(t, 10)

	var out struct {
		Features []domain.Feature `json:"features"`
	}
	resp, err := http.Get(ts.URL + "/api/features")
	if err != nil {
		t.Fatalf("GET /api/features: %v", err)
	}
	decode(t, resp, &out)

	if len(out.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(out.Features))
	}
	// Sorted by name.
	if out.Features[0].Name != "market_analysis" || out.Features[1].Name != "swot_analysis" {
		t.Errorf("unexpected order: %v, %v", out.Features[0].Name, out.Features[1].Name)
	}
	if out.Features[0].Cost != 2 {
		t.Errorf("market_analysis cost = %d, want 2", out.Features[0].Cost)
	}
}

func TestBalance_SignupGrant(t *testing.T) {
	ts := newTestServer(t, 10)

	var acct domain.CreditAccount
	resp, err := http.Get(ts.URL + "/api/credits/balance")
	if err != nil {
		t.Fatalf("GET balance: %v", err)
	}
	decode(t, resp, &acct)

	if acct.Balance != 10 {
		t.Errorf("balance = %d, want signup grant 10", acct.Balance)
	}
	if acct.UserID != "local" {
		t.Errorf("user = %q, want local default", acct.UserID)
	}
}

func TestGenerate_HappyPath(t *testing.T) {
	ts := newTestServer(t, 10)

	resp := postJSON(t, ts.URL+"/api/features/market_analysis/generate",
		map[string]string{"custom_text": "Pet-sitting marketplace"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Result  domain.GenerationResult `json:"result"`
		Balance int64                   `json:"balance"`
	}
	decode(t, resp, &out)

	if out.Result.Status != domain.RunSuccess {
		t.Fatalf("run status = %s (%s)", out.Result.Status, out.Result.ErrorMessage)
	}
	if out.Balance != 8 {
		t.Errorf("balance = %d, want 8 after a 2-credit debit", out.Balance)
	}
	if out.Result.Artifact["market_analysis"] == nil {
		t.Error("artifact missing payload key")
	}

	// The run is retrievable afterwards.
	getResp, err := http.Get(ts.URL + "/api/runs/" + out.Result.RunID)
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	var run orchestrator.StoredRun
	decode(t, getResp, &run)
	if run.Result.RunID != out.Result.RunID {
		t.Error("stored run ID mismatch")
	}

	// And as the feature's latest.
	latestResp, err := http.Get(ts.URL + "/api/features/market_analysis/latest")
	if err != nil {
		t.Fatalf("GET latest: %v", err)
	}
	latestResp.Body.Close()
	if latestResp.StatusCode != http.StatusOK {
		t.Errorf("latest status = %d, want 200", latestResp.StatusCode)
	}
}

func TestGenerate_InsufficientCredits(t *testing.T) {
	// Zero signup grant. The workflow starts, the debit fails, and the
	// terminal Error result comes back as a normal 200 response.
	ts := newTestServer(t, 0)

	resp := postJSON(t, ts.URL+"/api/features/market_analysis/generate",
		map[string]string{"custom_text": "Pet-sitting marketplace"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (terminal error state)", resp.StatusCode)
	}

	var out struct {
		Result domain.GenerationResult `json:"result"`
	}
	decode(t, resp, &out)
	if out.Result.Status != domain.RunError {
		t.Fatalf("run status = %s, want error", out.Result.Status)
	}
	if out.Result.ErrorMessage == "" {
		t.Error("expected a user-facing error message")
	}
}

func TestGenerate_PreflightRejections(t *testing.T) {
	ts := newTestServer(t, 10)

	// Unknown feature.
	resp := postJSON(t, ts.URL+"/api/features/mind_reading/generate",
		map[string]string{"custom_text": "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown feature status = %d, want 404", resp.StatusCode)
	}

	// No idea source at all.
	resp = postJSON(t, ts.URL+"/api/features/market_analysis/generate", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty input status = %d, want 400", resp.StatusCode)
	}

	// Both sources at once.
	resp = postJSON(t, ts.URL+"/api/features/market_analysis/generate",
		map[string]string{"idea_id": "i1", "custom_text": "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("ambiguous input status = %d, want 400", resp.StatusCode)
	}

	// Unknown stored idea.
	resp = postJSON(t, ts.URL+"/api/features/market_analysis/generate",
		map[string]string{"idea_id": "missing"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing idea status = %d, want 404", resp.StatusCode)
	}

	// No credits touched by any of the rejections.
	var acct domain.CreditAccount
	balResp, err := http.Get(ts.URL + "/api/credits/balance")
	if err != nil {
		t.Fatalf("GET balance: %v", err)
	}
	decode(t, balResp, &acct)
	if acct.Balance != 10 {
		t.Errorf("balance = %d, want untouched 10", acct.Balance)
	}
}

func TestRunLifecycle_ResetAndViewState(t *testing.T) {
	ts := newTestServer(t, 10)

	resp := postJSON(t, ts.URL+"/api/features/swot_analysis/generate",
		map[string]string{"custom_text": "Idea"})
	var out struct {
		Result domain.GenerationResult `json:"result"`
	}
	decode(t, resp, &out)
	runID := out.Result.RunID

	// Record view state.
	vsResp := postJSON(t, ts.URL+"/api/runs/"+runID+"/view-state",
		orchestrator.ViewState{ActiveTab: "threats", Page: 2, Fullscreen: true})
	vsResp.Body.Close()
	if vsResp.StatusCode != http.StatusOK {
		t.Fatalf("view-state status = %d", vsResp.StatusCode)
	}

	var run orchestrator.StoredRun
	getResp, err := http.Get(ts.URL + "/api/runs/" + runID)
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	decode(t, getResp, &run)
	if run.ViewState.ActiveTab != "threats" || run.ViewState.Page != 2 {
		t.Errorf("view state = %+v", run.ViewState)
	}

	// Reset clears the run.
	resetResp := postJSON(t, ts.URL+"/api/runs/"+runID+"/reset", struct{}{})
	resetResp.Body.Close()
	if resetResp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resetResp.StatusCode)
	}

	goneResp, err := http.Get(ts.URL + "/api/runs/" + runID)
	if err != nil {
		t.Fatalf("GET run after reset: %v", err)
	}
	goneResp.Body.Close()
	if goneResp.StatusCode != http.StatusNotFound {
		t.Errorf("run after reset = %d, want 404", goneResp.StatusCode)
	}

	// Reset is idempotent.
	againResp := postJSON(t, ts.URL+"/api/runs/"+runID+"/reset", struct{}{})
	againResp.Body.Close()
	if againResp.StatusCode != http.StatusOK {
		t.Errorf("second reset status = %d, want 200", againResp.StatusCode)
	}

	// View state for a cleared run is a 404.
	vsGone := postJSON(t, ts.URL+"/api/runs/"+runID+"/view-state",
		orchestrator.ViewState{ActiveTab: "x"})
	vsGone.Body.Close()
	if vsGone.StatusCode != http.StatusNotFound {
		t.Errorf("view-state after reset = %d, want 404", vsGone.StatusCode)
	}
}

func TestCredits_GrantAndLedger(t *testing.T) {
	ts := newTestServer(t, 5)

	var acct domain.CreditAccount
	resp := postJSON(t, ts.URL+"/api/credits/grant",
		map[string]any{"amount": 20, "description": "starter pack"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grant status = %d", resp.StatusCode)
	}
	decode(t, resp, &acct)
	if acct.Balance != 25 {
		t.Errorf("balance = %d, want 25", acct.Balance)
	}

	// Refund type is accepted.
	resp = postJSON(t, ts.URL+"/api/credits/grant",
		map[string]any{"amount": 2, "type": "REFUND", "description": "support comp"})
	decode(t, resp, &acct)
	if acct.Balance != 27 {
		t.Errorf("balance = %d, want 27", acct.Balance)
	}

	// Unknown type is rejected.
	resp = postJSON(t, ts.URL+"/api/credits/grant",
		map[string]any{"amount": 2, "type": "BONUS"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad type status = %d, want 400", resp.StatusCode)
	}

	// Invalid amount maps to 400.
	resp = postJSON(t, ts.URL+"/api/credits/grant", map[string]any{"amount": 0})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero amount status = %d, want 400", resp.StatusCode)
	}

	var ledger struct {
		Entries []domain.LedgerEntry `json:"entries"`
	}
	ledgerResp, err := http.Get(ts.URL + "/api/credits/ledger")
	if err != nil {
		t.Fatalf("GET ledger: %v", err)
	}
	decode(t, ledgerResp, &ledger)
	// Signup grant + top-up + refund.
	if len(ledger.Entries) != 3 {
		t.Fatalf("ledger entries = %d, want 3", len(ledger.Entries))
	}
	// Newest first.
	if ledger.Entries[0].Type != domain.TxRefund {
		t.Errorf("newest entry type = %s, want REFUND", ledger.Entries[0].Type)
	}
}

func TestIdeas_CreateAndGenerate(t *testing.T) {
	ts := newTestServer(t, 10)

	var idea domain.Idea
	resp := postJSON(t, ts.URL+"/api/ideas",
		map[string]string{"title": "Pet-sitting app", "description": "On-demand marketplace"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create idea status = %d", resp.StatusCode)
	}
	decode(t, resp, &idea)
	if idea.ID == "" {
		t.Fatal("idea ID not assigned")
	}

	// Missing title is rejected.
	badResp := postJSON(t, ts.URL+"/api/ideas", map[string]string{"description": "x"})
	badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("untitled idea status = %d, want 400", badResp.StatusCode)
	}

	var list struct {
		Ideas []domain.Idea `json:"ideas"`
	}
	listResp, err := http.Get(ts.URL + "/api/ideas")
	if err != nil {
		t.Fatalf("GET ideas: %v", err)
	}
	decode(t, listResp, &list)
	if len(list.Ideas) != 1 {
		t.Fatalf("ideas = %d, want 1", len(list.Ideas))
	}

	// Generate against the stored idea.
	genResp := postJSON(t, ts.URL+"/api/features/market_analysis/generate",
		map[string]string{"idea_id": idea.ID})
	var out struct {
		Result domain.GenerationResult `json:"result"`
	}
	decode(t, genResp, &out)
	if out.Result.Status != domain.RunSuccess {
		t.Fatalf("run status = %s (%s)", out.Result.Status, out.Result.ErrorMessage)
	}

	// The artifact landed in storage tagged with the idea.
	var arts struct {
		Artifacts []domain.SavedArtifact `json:"artifacts"`
	}
	artsResp, err := http.Get(ts.URL + "/api/artifacts")
	if err != nil {
		t.Fatalf("GET artifacts: %v", err)
	}
	decode(t, artsResp, &arts)
	if len(arts.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(arts.Artifacts))
	}
	if arts.Artifacts[0].IdeaID != idea.ID {
		t.Errorf("artifact idea = %q, want %q", arts.Artifacts[0].IdeaID, idea.ID)
	}
}

func TestUserIsolation(t *testing.T) {
	ts := newTestServer(t, 10)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/credits/balance", nil)
	req.Header.Set("X-User-ID", "alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET balance as alice: %v", err)
	}
	var acct domain.CreditAccount
	decode(t, resp, &acct)
	if acct.UserID != "alice" {
		t.Errorf("user = %q, want alice", acct.UserID)
	}
	if acct.Balance != 10 {
		t.Errorf("alice balance = %d, want her own signup grant 10", acct.Balance)
	}
}

// ─── Progress Hub ───────────────────────────────────────────────────────────

func TestProgressHub_Broadcast(t *testing.T) {
	hub := NewProgressHub()
	ch, unsub := hub.Subscribe("local/market_analysis")
	defer unsub()

	hub.Broadcast("local/market_analysis", domain.ProgressSample{Percent: 42, PhaseLabel: "Crunching market signals..."})

	select {
	case data := <-ch:
		var sample domain.ProgressSample
		if err := json.Unmarshal(data, &sample); err != nil {
			t.Fatalf("unmarshal sample: %v", err)
		}
		if sample.Percent != 42 {
			t.Errorf("percent = %d, want 42", sample.Percent)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}
}

func TestProgressHub_TopicIsolation(t *testing.T) {
	hub := NewProgressHub()
	ch, unsub := hub.Subscribe("local/swot_analysis")
	defer unsub()

	hub.Broadcast("local/market_analysis", domain.ProgressSample{Percent: 10})

	select {
	case <-ch:
		t.Fatal("sample crossed topics")
	default:
	}
}

func TestProgressHub_Unsubscribe(t *testing.T) {
	hub := NewProgressHub()
	_, unsub := hub.Subscribe("t")
	if hub.SubscriberCount("t") != 1 {
		t.Fatalf("subscribers = %d, want 1", hub.SubscriberCount("t"))
	}
	unsub()
	if hub.SubscriberCount("t") != 0 {
		t.Errorf("subscribers = %d after unsubscribe, want 0", hub.SubscriberCount("t"))
	}
	// Broadcasting to an empty topic must not panic.
	hub.Broadcast("t", domain.ProgressSample{Percent: 1})
}

func TestProgressHub_SinkFeedsSubscribers(t *testing.T) {
	hub := NewProgressHub()
	ch, unsub := hub.Subscribe("local/market_analysis")
	defer unsub()

	sink := hub.Sink("local/market_analysis")
	sink(domain.ProgressSample{Percent: 100, PhaseLabel: "Polishing the final details..."})

	select {
	case data := <-ch:
		if !bytes.Contains(data, []byte(`"percent":100`)) {
			t.Errorf("unexpected payload: %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("sink did not reach subscriber")
	}
}
