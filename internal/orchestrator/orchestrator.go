// Package orchestrator coordinates a workflow plan end to end: affordability
// check, per-scene image and video generation, optional voiceover, then the
// render merge, with every unit of work tracked and charged exactly once.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"videoforge/internal/cache"
	"videoforge/internal/credits"
	"videoforge/internal/domain"
	"videoforge/internal/infra"
	"videoforge/internal/pricing"
	"videoforge/internal/providers/image"
	"videoforge/internal/providers/video"
	"videoforge/internal/providers/voice"
	"videoforge/internal/render"
	"videoforge/internal/tracker"
)

const (
	nodeIDVoiceover = "voiceover"
	nodeIDMerge     = "merge"

	defaultMaxConcurrentScenes = 4
)

// Adapters maps model identifiers to generation providers. The empty key, if
// present, is the fallback for models without a dedicated entry.
type Adapters struct {
	Image map[string]image.Generator
	Video map[string]video.Generator
	Voice map[string]voice.Generator
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Runs                domain.RunRepository
	Jobs                domain.JobRepository
	Tracker             *tracker.Tracker
	Ledger              *credits.Ledger
	Pricing             pricing.Table
	Render              *render.Client
	Adapters            Adapters
	Cache               *cache.ArtifactCache
	Logger              infra.Logger
	MaxConcurrentScenes int
	// ArtifactTTL stamps an expiry on intermediate artifacts (scene images,
	// clips, voiceover audio) so the sweeper can purge them later. The final
	// merged video never expires. Zero disables expiry.
	ArtifactTTL time.Duration
}

// Orchestrator executes workflow plans. Execute is its single public operation.
type Orchestrator struct {
	runs          domain.RunRepository
	jobs          domain.JobRepository
	tracker       *tracker.Tracker
	ledger        *credits.Ledger
	pricing       pricing.Table
	render        *render.Client
	adapters      Adapters
	cache         *cache.ArtifactCache
	logger        infra.Logger
	maxConcurrent int
	artifactTTL   time.Duration
	admission     *userGate
}

// New constructs an orchestrator.
func New(opts Options) *Orchestrator {
	maxConcurrent := opts.MaxConcurrentScenes
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentScenes
	}
	return &Orchestrator{
		runs:          opts.Runs,
		jobs:          opts.Jobs,
		tracker:       opts.Tracker,
		ledger:        opts.Ledger,
		pricing:       opts.Pricing,
		render:        opts.Render,
		adapters:      opts.Adapters,
		cache:         opts.Cache,
		logger:        opts.Logger,
		maxConcurrent: maxConcurrent,
		artifactTTL:   opts.ArtifactTTL,
		admission:     newUserGate(),
	}
}

// artifactExpiry returns the expiry stamp for intermediate artifacts, or nil
// when expiry is disabled.
func (o *Orchestrator) artifactExpiry() *time.Time {
	if o.artifactTTL <= 0 {
		return nil
	}
	t := time.Now().UTC().Add(o.artifactTTL)
	return &t
}

// Result is the terminal outcome of one Execute call.
type Result struct {
	RunID         string           `json:"runId"`
	Status        domain.RunStatus `json:"status"`
	FinalVideoURL string           `json:"finalVideoUrl,omitempty"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
}

// Execute runs the plan for the user and drives the run to a terminal status.
// Pre-flight failures (invalid plan, insufficient balance) return an error and
// create no run; once a run exists its outcome is reported in the Result.
func (o *Orchestrator) Execute(ctx context.Context, plan domain.WorkflowPlan, userID string) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	// Admission is serialized per user so two concurrent runs cannot both
	// pass the affordability check against the same balance.
	release := o.admission.acquire(userID)
	defer release()

	estimate := pricing.CreditsToUnits(plan.EstimatedCredits)
	balance, err := o.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if balance < estimate {
		return nil, fmt.Errorf("%w: balance %.1f, plan needs %.1f",
			domain.ErrInsufficientCredits, pricing.UnitsToCredits(balance), plan.EstimatedCredits)
	}

	snapshot := plan.Clone()
	planJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("snapshot plan: %w", err)
	}
	run := &domain.Run{
		ID:        uuid.NewString(),
		UserID:    userID,
		PlanJSON:  planJSON,
		Status:    domain.RunStatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := o.runs.UpdateStatus(ctx, run.ID, domain.RunStatusRunning, ""); err != nil {
		return nil, fmt.Errorf("mark run running: %w", err)
	}
	run.Status = domain.RunStatusRunning
	o.logger.Info().Str("run_id", run.ID).Str("user_id", userID).Int("scenes", len(snapshot.Scenes)).Msg("orchestrator: run started")

	videoArts := make([]*domain.Artifact, len(snapshot.Scenes))
	var voiceArt *domain.Artifact

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)
	for i := range snapshot.Scenes {
		i, scene := i, snapshot.Scenes[i]
		g.Go(func() error {
			imgArt, err := o.runImageJob(gctx, run, snapshot, scene)
			if err != nil {
				return err
			}
			// A sibling may have failed while our image call was in
			// flight; its bookkeeping stands but the result is discarded
			// and this scene's video stage never starts.
			if err := gctx.Err(); err != nil {
				return err
			}
			vidArt, err := o.runVideoJob(gctx, run, snapshot, scene, imgArt)
			if err != nil {
				return err
			}
			videoArts[i] = vidArt
			return nil
		})
	}
	if snapshot.Voiceover != nil {
		g.Go(func() error {
			art, err := o.runVoiceoverJob(gctx, run, snapshot)
			if err != nil {
				return err
			}
			voiceArt = art
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return o.failRun(ctx, run, err)
	}

	finalURL, err := o.runMergeJob(ctx, run, snapshot, videoArts, voiceArt)
	if err != nil {
		return o.failRun(ctx, run, err)
	}
	return o.completeRun(ctx, run, finalURL)
}

func (o *Orchestrator) runImageJob(ctx context.Context, run *domain.Run, plan domain.WorkflowPlan, scene domain.Scene) (*domain.Artifact, error) {
	model := plan.ImageModel(scene)
	cost, err := o.pricing.ImageCost(model)
	if err != nil {
		return nil, err
	}
	out := render.OutputForPreset(plan.Resolution)
	params := map[string]any{
		"model":  model,
		"prompt": scene.Description,
		"width":  out.Width,
		"height": out.Height,
	}
	if scene.StylePreset != "" {
		params["style"] = scene.StylePreset
	}

	job, err := o.tracker.Begin(ctx, run, scene.ID, domain.NodeTypeImage, model, params)
	if err != nil {
		return nil, err
	}
	base := context.WithoutCancel(ctx)

	key := cache.Key(domain.NodeTypeImage, model, params)
	if o.cache != nil {
		if reused, ok := o.cache.Lookup(key); ok {
			if err := o.tracker.CompleteCached(base, run, job, reused); err != nil {
				return nil, err
			}
			return reused, nil
		}
	}

	gen, err := resolveAdapter(o.adapters.Image, model)
	if err != nil {
		return nil, o.failJob(base, job, err)
	}
	res, err := gen.Generate(ctx, image.Request{
		Model:   model,
		Prompt:  scene.Description,
		Width:   out.Width,
		Height:  out.Height,
		Style:   scene.StylePreset,
		TraceID: job.ID,
	})
	if err != nil {
		return nil, o.failJob(base, job, fmt.Errorf("image generation for scene %s: %w", scene.ID, err))
	}
	artifact, err := o.tracker.Complete(base, run, job, tracker.ArtifactFields{
		Kind:      domain.ArtifactKindImage,
		URL:       res.URL,
		Width:     res.Width,
		Height:    res.Height,
		ExpiresAt: o.artifactExpiry(),
	}, cost, res.Meta)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Store(key, artifact)
	}
	return artifact, nil
}

func (o *Orchestrator) runVideoJob(ctx context.Context, run *domain.Run, plan domain.WorkflowPlan, scene domain.Scene, imgArt *domain.Artifact) (*domain.Artifact, error) {
	model := plan.VideoModel(scene)
	cost, err := o.pricing.VideoCost(model, scene.DurationSeconds)
	if err != nil {
		return nil, err
	}
	out := render.OutputForPreset(plan.Resolution)
	params := map[string]any{
		"model":            model,
		"image_url":        imgArt.URL,
		"prompt":           scene.Description,
		"duration_seconds": scene.DurationSeconds,
		"width":            out.Width,
		"height":           out.Height,
	}

	job, err := o.tracker.Begin(ctx, run, scene.ID, domain.NodeTypeVideo, model, params)
	if err != nil {
		return nil, err
	}
	base := context.WithoutCancel(ctx)

	key := cache.Key(domain.NodeTypeVideo, model, params)
	if o.cache != nil {
		if reused, ok := o.cache.Lookup(key); ok {
			if err := o.tracker.CompleteCached(base, run, job, reused); err != nil {
				return nil, err
			}
			return reused, nil
		}
	}

	gen, err := resolveAdapter(o.adapters.Video, model)
	if err != nil {
		return nil, o.failJob(base, job, err)
	}
	res, err := gen.Generate(ctx, video.Request{
		Model:           model,
		ImageURL:        imgArt.URL,
		Prompt:          scene.Description,
		DurationSeconds: scene.DurationSeconds,
		Width:           out.Width,
		Height:          out.Height,
		TraceID:         job.ID,
	})
	if err != nil {
		return nil, o.failJob(base, job, fmt.Errorf("video generation for scene %s: %w", scene.ID, err))
	}
	artifact, err := o.tracker.Complete(base, run, job, tracker.ArtifactFields{
		Kind:            domain.ArtifactKindVideo,
		URL:             res.URL,
		DurationSeconds: res.DurationSeconds,
		Width:           res.Width,
		Height:          res.Height,
		ExpiresAt:       o.artifactExpiry(),
	}, cost, res.Meta)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Store(key, artifact)
	}
	return artifact, nil
}

func (o *Orchestrator) runVoiceoverJob(ctx context.Context, run *domain.Run, plan domain.WorkflowPlan) (*domain.Artifact, error) {
	model := plan.Models.Voiceover
	cost, err := o.pricing.VoiceoverCost(model)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"model": model,
		"voice": plan.Voiceover.Voice,
		"text":  plan.Voiceover.Script,
	}
	if plan.Voiceover.Language != "" {
		params["language"] = plan.Voiceover.Language
	}

	job, err := o.tracker.Begin(ctx, run, nodeIDVoiceover, domain.NodeTypeVoiceover, model, params)
	if err != nil {
		return nil, err
	}
	base := context.WithoutCancel(ctx)

	gen, err := resolveAdapter(o.adapters.Voice, model)
	if err != nil {
		return nil, o.failJob(base, job, err)
	}
	res, err := gen.Synthesize(ctx, voice.Request{
		Model:    model,
		Text:     plan.Voiceover.Script,
		Voice:    plan.Voiceover.Voice,
		Language: plan.Voiceover.Language,
		TraceID:  job.ID,
	})
	if err != nil {
		return nil, o.failJob(base, job, fmt.Errorf("voiceover generation: %w", err))
	}
	return o.tracker.Complete(base, run, job, tracker.ArtifactFields{
		Kind:            domain.ArtifactKindAudio,
		URL:             res.URL,
		DurationSeconds: res.DurationSeconds,
		ExpiresAt:       o.artifactExpiry(),
	}, cost, res.Meta)
}

func (o *Orchestrator) runMergeJob(ctx context.Context, run *domain.Run, plan domain.WorkflowPlan, videoArts []*domain.Artifact, voiceArt *domain.Artifact) (string, error) {
	cost := o.pricing.MergeCost()

	// Clip order follows the plan's declared scene order, not generation
	// completion order.
	clips := make([]render.ClipSource, len(videoArts))
	var total float64
	for i, art := range videoArts {
		clips[i] = render.ClipSource{URL: art.URL, DurationSeconds: art.DurationSeconds}
		total += art.DurationSeconds
	}
	audioURL := ""
	if voiceArt != nil {
		audioURL = voiceArt.URL
	}
	params := map[string]any{
		"clips":      len(clips),
		"transition": plan.Transition,
		"resolution": plan.Resolution,
	}
	if audioURL != "" {
		params["audio_url"] = audioURL
	}

	job, err := o.tracker.Begin(ctx, run, nodeIDMerge, domain.NodeTypeMerge, "render", params)
	if err != nil {
		return "", err
	}
	base := context.WithoutCancel(ctx)

	timeline := render.BuildTimeline(clips, audioURL, plan.Transition)
	output := render.OutputForPreset(plan.Resolution)
	finalURL, err := o.render.Render(ctx, timeline, output)
	if err != nil {
		return "", o.failJob(base, job, fmt.Errorf("merge render: %w", err))
	}
	if _, err := o.tracker.Complete(base, run, job, tracker.ArtifactFields{
		Kind:            domain.ArtifactKindVideo,
		URL:             finalURL,
		DurationSeconds: total,
		Width:           output.Width,
		Height:          output.Height,
	}, cost, map[string]any{"vendor": "render"}); err != nil {
		return "", err
	}
	return finalURL, nil
}

// failJob records the terminal failed job and returns the triggering error. A
// failed bookkeeping write outranks the adapter error: it must surface.
func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, cause error) error {
	if err := o.tracker.Fail(ctx, job, cause.Error()); err != nil {
		return err
	}
	return cause
}

func (o *Orchestrator) failRun(ctx context.Context, run *domain.Run, cause error) (*Result, error) {
	base := context.WithoutCancel(ctx)
	o.recordSpend(base, run)
	if err := o.runs.UpdateStatus(base, run.ID, domain.RunStatusFailed, cause.Error()); err != nil {
		return nil, fmt.Errorf("mark run failed: %w", err)
	}
	o.logger.Warn().Str("run_id", run.ID).Err(cause).Msg("orchestrator: run failed")
	return &Result{RunID: run.ID, Status: domain.RunStatusFailed, ErrorMessage: cause.Error()}, nil
}

func (o *Orchestrator) completeRun(ctx context.Context, run *domain.Run, finalURL string) (*Result, error) {
	base := context.WithoutCancel(ctx)
	o.recordSpend(base, run)
	if err := o.runs.UpdateStatus(base, run.ID, domain.RunStatusCompleted, ""); err != nil {
		return nil, fmt.Errorf("mark run completed: %w", err)
	}
	o.logger.Info().Str("run_id", run.ID).Str("final_url", finalURL).Msg("orchestrator: run completed")
	return &Result{RunID: run.ID, Status: domain.RunStatusCompleted, FinalVideoURL: finalURL}, nil
}

// recordSpend copies the sum of job charges onto the run. Credits spent on
// completed jobs of a failed run stay charged; refunds are an explicit
// non-feature.
func (o *Orchestrator) recordSpend(ctx context.Context, run *domain.Run) {
	sum, err := o.jobs.SumCreditsByRunID(ctx, run.ID)
	if err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("orchestrator: sum credits failed")
		return
	}
	if err := o.runs.SetCreditsDeducted(ctx, run.ID, sum); err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("orchestrator: record spend failed")
	}
}

func resolveAdapter[T any](m map[string]T, model string) (T, error) {
	if g, ok := m[model]; ok {
		return g, nil
	}
	if g, ok := m[""]; ok {
		return g, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: no adapter configured for model %q", domain.ErrProviderFailure, model)
}
