package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestBuildTimelineSequentialStarts(t *testing.T) {
	clips := []ClipSource{
		{URL: "https://cdn.example.com/a.mp4", DurationSeconds: 5},
		{URL: "https://cdn.example.com/b.mp4", DurationSeconds: 3},
		{URL: "https://cdn.example.com/c.mp4", DurationSeconds: 4},
	}
	timeline := BuildTimeline(clips, "", "wipeRight")

	if len(timeline.Tracks) != 1 {
		t.Fatalf("tracks = %d, want 1 (no audio)", len(timeline.Tracks))
	}
	placed := timeline.Tracks[0].Clips
	wantStarts := []float64{0, 5, 8}
	for i, clip := range placed {
		if clip.Start != wantStarts[i] {
			t.Fatalf("clip %d start = %v, want %v", i, clip.Start, wantStarts[i])
		}
	}
}

func TestBuildTimelineFirstLastFadeRule(t *testing.T) {
	clips := []ClipSource{
		{URL: "a.mp4", DurationSeconds: 5},
		{URL: "b.mp4", DurationSeconds: 3},
		{URL: "c.mp4", DurationSeconds: 4},
	}
	placed := BuildTimeline(clips, "", "wipeRight").Tracks[0].Clips

	if placed[0].Transition.In != "fade" {
		t.Fatalf("first clip in = %q, want fade", placed[0].Transition.In)
	}
	if placed[2].Transition.Out != "fade" {
		t.Fatalf("last clip out = %q, want fade", placed[2].Transition.Out)
	}
	// Interior boundaries keep the requested transition.
	if placed[0].Transition.Out != "wipeRight" || placed[1].Transition.In != "wipeRight" ||
		placed[1].Transition.Out != "wipeRight" || placed[2].Transition.In != "wipeRight" {
		t.Fatalf("interior transitions lost: %+v %+v %+v", placed[0].Transition, placed[1].Transition, placed[2].Transition)
	}
}

func TestBuildTimelineAudioBed(t *testing.T) {
	clips := []ClipSource{
		{URL: "a.mp4", DurationSeconds: 5},
		{URL: "b.mp4", DurationSeconds: 3},
	}
	timeline := BuildTimeline(clips, "https://cdn.example.com/vo.mp3", "fade")
	if len(timeline.Tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(timeline.Tracks))
	}
	bed := timeline.Tracks[1].Clips[0]
	if bed.Start != 0 {
		t.Fatalf("audio start = %v, want 0", bed.Start)
	}
	if bed.Length != 8 {
		t.Fatalf("audio length = %v, want composition length 8", bed.Length)
	}
	if bed.Volume >= 1 || bed.Volume <= 0 {
		t.Fatalf("audio volume = %v, want reduced", bed.Volume)
	}
}

func TestOutputForPresetFallsBackToHD(t *testing.T) {
	out := OutputForPreset("cinema-imax")
	if out.Width != 1280 || out.Height != 720 {
		t.Fatalf("unknown preset resolved to %dx%d, want 1280x720", out.Width, out.Height)
	}
	out = OutputForPreset("1080")
	if out.Width != 1920 || out.Height != 1080 {
		t.Fatalf("1080 preset resolved to %dx%d", out.Width, out.Height)
	}
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{BaseURL: baseURL, APIKey: "key", Sleep: noSleep})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSubmitRejectionSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad timeline", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Submit(context.Background(), Timeline{}, OutputForPreset("hd"))
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("error = %v, want SubmissionError", err)
	}
	if subErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", subErr.StatusCode)
	}
}

func TestRenderPollsThroughVendorStates(t *testing.T) {
	states := []string{"queued", "fetching", "rendering", "saving", "done"}
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "r-1"})
			return
		}
		i := atomic.AddInt32(&polls, 1) - 1
		resp := map[string]string{"status": states[i]}
		if states[i] == "done" {
			resp["url"] = "https://cdn.example.com/final.mp4"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	url, err := newClient(t, srv.URL).Render(context.Background(), Timeline{}, OutputForPreset("hd"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if url != "https://cdn.example.com/final.mp4" {
		t.Fatalf("url = %q", url)
	}
	if polls != int32(len(states)) {
		t.Fatalf("polls = %d, want %d", polls, len(states))
	}
}

func TestRenderTimeoutAfterAttemptCeiling(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "r-1"})
			return
		}
		atomic.AddInt32(&polls, 1)
		json.NewEncoder(w).Encode(map[string]string{"status": "rendering"})
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Render(context.Background(), Timeline{}, OutputForPreset("hd"))
	if !errors.Is(err, ErrRenderTimeout) {
		t.Fatalf("error = %v, want ErrRenderTimeout", err)
	}
	if polls != 60 {
		t.Fatalf("polls = %d, want exactly 60", polls)
	}
}

func TestRenderVendorFailureSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "r-1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "failed", "error": "codec mismatch"})
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Render(context.Background(), Timeline{}, OutputForPreset("hd"))
	var vendorErr *VendorError
	if !errors.As(err, &vendorErr) {
		t.Fatalf("error = %v, want VendorError", err)
	}
	if vendorErr.Message != "codec mismatch" {
		t.Fatalf("message = %q", vendorErr.Message)
	}
}

func TestRenderDoneWithoutURLIsProtocolViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "r-1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "done"})
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Render(context.Background(), Timeline{}, OutputForPreset("hd"))
	if !errors.Is(err, ErrMissingRenderURL) {
		t.Fatalf("error = %v, want ErrMissingRenderURL", err)
	}
}

func TestUnknownStateCountsAsInProgress(t *testing.T) {
	seq := []string{"warming-up", "done"}
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "r-1"})
			return
		}
		i := atomic.AddInt32(&polls, 1) - 1
		resp := map[string]string{"status": seq[i]}
		if seq[i] == "done" {
			resp["url"] = "https://cdn.example.com/final.mp4"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	url, err := newClient(t, srv.URL).Render(context.Background(), Timeline{}, OutputForPreset("hd"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if url == "" {
		t.Fatalf("expected final url")
	}
}
