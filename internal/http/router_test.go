package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"videoforge/internal/adapter/memrepo"
	"videoforge/internal/credits"
	"videoforge/internal/domain"
	"videoforge/internal/http/handlers"
	"videoforge/internal/infra"
	"videoforge/internal/orchestrator"
	"videoforge/internal/pricing"
	"videoforge/internal/providers/image"
	"videoforge/internal/providers/video"
	"videoforge/internal/providers/voice"
	"videoforge/internal/render"
	"videoforge/internal/tracker"
)

// capturedRuns remembers created run ids so tests can find a run whose id
// never reached the client.
type capturedRuns struct {
	domain.RunRepository
	mu  sync.Mutex
	ids []string
}

func (c *capturedRuns) Create(ctx context.Context, run *domain.Run) error {
	c.mu.Lock()
	c.ids = append(c.ids, run.ID)
	c.mu.Unlock()
	return c.RunRepository.Create(ctx, run)
}

func (c *capturedRuns) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

// newTestStack wires the full stack against in-memory storage, synthetic
// providers and a stubbed render vendor, then serves it over httptest. A
// non-nil img replaces the synthetic image adapter.
func newTestStack(t *testing.T, img image.Generator) (*httptest.Server, *memrepo.Store, *capturedRuns) {
	t.Helper()

	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "r-1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "done", "url": "https://cdn.example.com/final.mp4"})
	}))
	t.Cleanup(vendor.Close)

	renderClient, err := render.NewClient(render.Options{
		BaseURL: vendor.URL,
		Sleep:   func(ctx context.Context, d time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("render client: %v", err)
	}

	store := memrepo.NewStore()
	runs := &capturedRuns{RunRepository: store.Runs()}
	logger := infra.NewLogger("test", "test")
	ledger := credits.NewLedger(store.Credits(), logger)
	tr := tracker.New(store.Jobs(), store.Artifacts(), ledger, logger)

	if img == nil {
		img = image.NewSynthetic("https://cdn.test")
	}
	orch := orchestrator.New(orchestrator.Options{
		Runs:    runs,
		Jobs:    store.Jobs(),
		Tracker: tr,
		Ledger:  ledger,
		Pricing: pricing.DefaultTable(),
		Render:  renderClient,
		Adapters: orchestrator.Adapters{
			Image: map[string]image.Generator{"": img},
			Video: map[string]video.Generator{"": video.NewSynthetic("https://cdn.test")},
			Voice: map[string]voice.Generator{"": voice.NewSynthetic("https://cdn.test")},
		},
		Logger: logger,
	})

	app := handlers.NewApp(orch, ledger, store.Runs(), store.Jobs(), store.Artifacts(), logger)
	srv := httptest.NewServer(NewRouter(app, logger))
	t.Cleanup(srv.Close)
	return srv, store, runs
}

func newTestService(t *testing.T) *httptest.Server {
	t.Helper()
	srv, _, _ := newTestStack(t, nil)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, userID, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

const testPlanJSON = `{
	"scenes": [
		{"id": "s1", "description": "sunrise over the harbor", "durationSeconds": 5},
		{"id": "s2", "description": "fishermen hauling nets", "durationSeconds": 3}
	],
	"voiceover": {"script": "A day at the harbor.", "voice": "narrator", "language": "en-US"},
	"estimatedCredits": 32.7,
	"recommendedModels": {"image": "flux-schnell", "video": "kling-v1", "voiceover": "openai-tts-1"},
	"transition": "slideLeft",
	"resolution": "hd"
}`

func TestRunLifecycleOverHTTP(t *testing.T) {
	srv := newTestService(t)

	code, body := doJSON(t, srv, http.MethodPost, "/v1/credits/grants", "u-1", `{"credits": 100, "reason": "signup"}`)
	if code != http.StatusCreated {
		t.Fatalf("grant status = %d, want %d (%v)", code, http.StatusCreated, body)
	}

	code, body = doJSON(t, srv, http.MethodPost, "/v1/runs", "u-1", testPlanJSON)
	if code != http.StatusOK {
		t.Fatalf("execute status = %d, want %d (%v)", code, http.StatusOK, body)
	}
	if body["status"] != "completed" {
		t.Fatalf("run status = %v, want completed", body["status"])
	}
	if body["finalVideoUrl"] != "https://cdn.example.com/final.mp4" {
		t.Fatalf("finalVideoUrl = %v", body["finalVideoUrl"])
	}
	runID, _ := body["runId"].(string)
	if runID == "" {
		t.Fatalf("missing runId in %v", body)
	}

	code, body = doJSON(t, srv, http.MethodGet, "/v1/runs/"+runID, "u-1", "")
	if code != http.StatusOK {
		t.Fatalf("get run status = %d (%v)", code, body)
	}
	if body["status"] != "completed" {
		t.Fatalf("stored run status = %v, want completed", body["status"])
	}
	deducted, _ := body["creditsDeducted"].(float64)
	if deducted <= 0 {
		t.Fatalf("creditsDeducted = %v, want > 0", body["creditsDeducted"])
	}

	code, body = doJSON(t, srv, http.MethodGet, "/v1/runs/"+runID+"/jobs", "u-1", "")
	if code != http.StatusOK {
		t.Fatalf("list jobs status = %d (%v)", code, body)
	}
	jobs, _ := body["jobs"].([]any)
	// Two scenes give two image and two video jobs, plus voiceover and merge.
	if len(jobs) != 6 {
		t.Fatalf("job count = %d, want 6", len(jobs))
	}

	code, body = doJSON(t, srv, http.MethodGet, "/v1/credits/balance", "u-1", "")
	if code != http.StatusOK {
		t.Fatalf("balance status = %d (%v)", code, body)
	}
	balance, _ := body["credits"].(float64)
	if got := 100 - deducted; balance != got {
		t.Fatalf("balance = %v, want %v", balance, got)
	}
}

// gatedImageGen blocks every call until release is closed, signalling once a
// call is in flight. It ignores context on purpose: the run, not the request,
// owns the call's lifetime.
type gatedImageGen struct {
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
}

func (g *gatedImageGen) Generate(ctx context.Context, req image.Request) (*image.Result, error) {
	g.startOnce.Do(func() { close(g.started) })
	<-g.release
	return &image.Result{URL: "https://cdn.test/img-" + req.Prompt + ".png", Width: req.Width, Height: req.Height}, nil
}

func TestClientDisconnectDoesNotAbortRun(t *testing.T) {
	img := &gatedImageGen{started: make(chan struct{}), release: make(chan struct{})}
	srv, store, runs := newTestStack(t, img)

	code, body := doJSON(t, srv, http.MethodPost, "/v1/credits/grants", "u-1", `{"credits": 100}`)
	if code != http.StatusCreated {
		t.Fatalf("grant status = %d (%v)", code, body)
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/v1/runs", strings.NewReader(testPlanJSON))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u-1")

	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		resp, err := srv.Client().Do(req)
		if err == nil {
			resp.Body.Close()
		}
	}()

	// Drop the connection while image generation is in flight, then let the
	// adapters finish.
	<-img.started
	cancel()
	<-clientDone
	close(img.release)

	var run *domain.Run
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if ids := runs.IDs(); len(ids) == 1 {
			r, err := store.Runs().GetByID(context.Background(), ids[0])
			if err != nil {
				t.Fatalf("load run: %v", err)
			}
			if r.Status.Terminal() {
				run = r
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if run == nil {
		t.Fatalf("run never reached a terminal status after client disconnect")
	}
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("run status = %s (%s), want completed despite disconnect", run.Status, run.ErrorMessage)
	}
	if run.CreditsDeducted == 0 {
		t.Fatalf("completed run recorded no spend")
	}
}

func TestExecuteRunWithoutCreditsIsRejected(t *testing.T) {
	srv := newTestService(t)

	code, body := doJSON(t, srv, http.MethodPost, "/v1/runs", "u-broke", testPlanJSON)
	if code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d (%v)", code, http.StatusPaymentRequired, body)
	}
	if body["error"] != "insufficient_credits" {
		t.Fatalf("error = %v, want insufficient_credits", body["error"])
	}
}

func TestRunsAreInvisibleToOtherUsers(t *testing.T) {
	srv := newTestService(t)

	code, _ := doJSON(t, srv, http.MethodPost, "/v1/credits/grants", "u-1", `{"credits": 100}`)
	if code != http.StatusCreated {
		t.Fatalf("grant status = %d", code)
	}
	code, body := doJSON(t, srv, http.MethodPost, "/v1/runs", "u-1", testPlanJSON)
	if code != http.StatusOK {
		t.Fatalf("execute status = %d (%v)", code, body)
	}
	runID, _ := body["runId"].(string)

	code, body = doJSON(t, srv, http.MethodGet, "/v1/runs/"+runID, "u-2", "")
	if code != http.StatusNotFound {
		t.Fatalf("cross-user get status = %d, want %d (%v)", code, http.StatusNotFound, body)
	}
}

func TestMissingUserHeaderIsUnauthorized(t *testing.T) {
	srv := newTestService(t)

	code, body := doJSON(t, srv, http.MethodPost, "/v1/runs", "", testPlanJSON)
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d (%v)", code, http.StatusUnauthorized, body)
	}
}

func TestGrantRejectsNonPositiveCredits(t *testing.T) {
	srv := newTestService(t)

	code, body := doJSON(t, srv, http.MethodPost, "/v1/credits/grants", "u-1", `{"credits": 0}`)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d (%v)", code, http.StatusBadRequest, body)
	}
}
