package engine

import (
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/pipeline/events"
	"github.com/amesworks/groundwork/internal/pipeline/resolver"
	"github.com/amesworks/groundwork/internal/pipeline/scheduler"
)

// Engine coordinates the resolver and scheduler while persisting run state.
type Engine struct {
	registry *pipeline.Registry
	repo     StateStore
	clock    func() time.Time
	sink     events.Sink
	recorder Recorder
}

// Recorder persists run and stage history. The engine treats recording as
// best-effort; failures are surfaced through the logbook, never as run errors.
type Recorder interface {
	BeginRun(runID, pipelineID string, startedAt time.Time) error
	RecordStage(runID, stageID, status, message string, metrics map[string]int, startedAt, finishedAt time.Time) error
	FinishRun(runID, status string, finishedAt time.Time) error
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithSink attaches an event sink that observes run and stage transitions.
func WithSink(sink events.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithRecorder attaches a run history recorder.
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// New wires a pipeline engine to the stage registry and persistence store.
func New(registry *pipeline.Registry, repo StateStore, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("pipeline engine: stage registry is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("pipeline engine: state store is required")
	}
	engine := &Engine{
		registry: registry,
		repo:     repo,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// StartRequest bootstraps a pipeline definition with the engine runtime.
type StartRequest struct {
	Definition pipeline.Definition
	Runtime    *RuntimeOverrides
}

// ResumeRequest refreshes persistent state after process restarts.
type ResumeRequest struct {
	Runtime *RuntimeOverrides
}

// StageUpdate informs the engine that a stage finished running.
type StageUpdate struct {
	ID         string
	Result     pipeline.Result
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// UpdateRequest applies runtime overrides and stage result updates.
type UpdateRequest struct {
	Runtime *RuntimeOverrides
	Results []StageUpdate
}

// Start evaluates a pipeline definition from scratch.
func (e *Engine) Start(ctx *pipeline.Context, req StartRequest) (State, error) {
	if ctx == nil {
		return State{}, fmt.Errorf("pipeline engine: stage context is required")
	}
	normalized, err := req.Definition.Normalized()
	if err != nil {
		return State{}, err
	}
	runtime := applyRuntimeOverrides(Runtime{}, req.Runtime)
	state, err := e.buildState(ctx, normalized, runtime, nil)
	if err != nil {
		return State{}, err
	}
	now := e.now()
	state.RunID = newRunID(normalized.ID, now)
	state.PipelineID = normalized.ID
	state.StartedAt = now
	state.UpdatedAt = now
	if err := e.repo.Save(state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Resume reloads persisted state and refreshes resolver/scheduler snapshots.
func (e *Engine) Resume(ctx *pipeline.Context, req ResumeRequest) (State, error) {
	if ctx == nil {
		return State{}, fmt.Errorf("pipeline engine: stage context is required")
	}
	current, err := e.repo.Load()
	if err != nil {
		return State{}, err
	}
	runtime := applyRuntimeOverrides(current.Runtime, req.Runtime)
	state, err := e.buildState(ctx, current.Definition, runtime, current.Runs)
	if err != nil {
		return State{}, err
	}
	state.RunID = current.RunID
	state.PipelineID = current.PipelineID
	state.StartedAt = current.StartedAt
	state.UpdatedAt = e.now()
	if err := e.repo.Save(state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Update merges stage results, reapplies runtime overrides, and refreshes state.
func (e *Engine) Update(ctx *pipeline.Context, req UpdateRequest) (State, error) {
	if ctx == nil {
		return State{}, fmt.Errorf("pipeline engine: stage context is required")
	}
	current, err := e.repo.Load()
	if err != nil {
		return State{}, err
	}
	updatedRuns := mergeRuns(current.Runs, req.Results, e.now)
	runtime := applyRuntimeOverrides(current.Runtime, req.Runtime)
	runtime.Running = releaseRunning(runtime.Running, req.Results)
	state, err := e.buildState(ctx, current.Definition, runtime, updatedRuns)
	if err != nil {
		return State{}, err
	}
	state.RunID = current.RunID
	state.PipelineID = current.PipelineID
	state.StartedAt = current.StartedAt
	state.UpdatedAt = e.now()
	if err := e.repo.Save(state); err != nil {
		return State{}, err
	}
	return state, nil
}

// View returns the last persisted snapshot without recomputing resolver state.
func (e *Engine) View() (State, error) {
	return e.repo.Load()
}

func (e *Engine) buildState(ctx *pipeline.Context, def pipeline.Definition, runtime Runtime, runs map[string]StageRun) (State, error) {
	runtime = applyPipelineRuntime(def, runtime)
	res, err := resolver.New(def, e.registry)
	if err != nil {
		return State{}, err
	}
	if err := res.Refresh(ctx); err != nil {
		return State{}, err
	}
	sched, err := scheduler.New(res)
	if err != nil {
		return State{}, err
	}
	batch, err := sched.Runnable(runtime.schedulerRequest())
	if err != nil {
		return State{}, err
	}
	nodes := summarizeNodes(res, runs)
	runtime.Running = dropSettledRunning(runtime.Running, nodes)
	status, reason := deriveRunStatus(nodes, runtime, runs)
	state := State{
		PipelineID:   def.ID,
		Definition:   def.Clone(),
		Runtime:      runtime.clone(),
		Nodes:        nodes,
		Runnable:     runnableIDs(batch.Nodes),
		Skipped:      cloneSkipped(batch.Skipped),
		Runs:         cloneRuns(runs),
		Status:       status,
		StatusReason: reason,
	}
	return state, nil
}

func summarizeNodes(res *resolver.Resolver, runs map[string]StageRun) []StageStatus {
	nodes := res.Nodes()
	result := make([]StageStatus, 0, len(nodes))
	for _, node := range nodes {
		info := node.Stage.Info()
		ref := node.Ref
		status := StageStatus{
			ID:           node.ID,
			StageID:      ref.StageID,
			Name:         pickName(ref, info),
			Description:  ref.Description,
			Optional:     ref.Optional,
			Concurrency:  info.Concurrency,
			State:        node.State,
			Dependencies: cloneStrings(node.Dependencies),
			Dependents:   cloneStrings(node.Dependents),
			BlockedBy:    cloneStrings(node.BlockedBy),
		}
		if node.Err != nil {
			status.Error = node.Err.Error()
		}
		if len(node.Artifacts) > 0 {
			status.Artifacts = make(map[string]ArtifactStatus, len(node.Artifacts))
			for id, report := range node.Artifacts {
				status.Artifacts[id] = ArtifactStatus{
					ID:                  id,
					Status:              report.Status,
					ExpectedFingerprint: report.ExpectedFingerprint,
					StoredFingerprint:   report.StoredFingerprint,
					Error:               errorString(report.Err),
				}
			}
		}
		if run, ok := runs[node.ID]; ok {
			copyRun := run
			status.LastRun = &copyRun
		}
		result = append(result, status)
	}
	return result
}

func pickName(ref pipeline.StageRef, info pipeline.Info) string {
	if ref.Name != "" {
		return ref.Name
	}
	if info.Name != "" {
		return info.Name
	}
	if ref.StageID != "" {
		return ref.StageID
	}
	return ref.InstanceID()
}

func deriveRunStatus(nodes []StageStatus, runtime Runtime, runs map[string]StageRun) (RunStatus, string) {
	for _, status := range nodes {
		if status.State == resolver.NodeStateError {
			return RunStatusError, fmt.Sprintf("%s encountered an error", status.ID)
		}
	}
	for id, run := range runs {
		if run.Status == pipeline.StatusFailed {
			return RunStatusError, fmt.Sprintf("%s failed", id)
		}
	}
	for id, run := range runs {
		if run.Status == pipeline.StatusNeedsInput {
			return RunStatusBlocked, fmt.Sprintf("%s needs input", id)
		}
	}
	hasReady := false
	hasPending := false
	for _, status := range nodes {
		switch status.State {
		case resolver.NodeStateReady:
			hasReady = true
		case resolver.NodeStatePending, resolver.NodeStateBlocked, resolver.NodeStateUnknown:
			hasPending = true
		}
	}
	if !hasReady && !hasPending {
		return RunStatusComplete, ""
	}
	if hasReady || len(runtime.Running) > 0 {
		return RunStatusRunning, ""
	}
	return RunStatusBlocked, ""
}

func runnableIDs(nodes []*resolver.Node) []string {
	if len(nodes) == 0 {
		return nil
	}
	ids := make([]string, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}
	return ids
}

func cloneSkipped(values map[string]scheduler.SkipReason) map[string]scheduler.SkipReason {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]scheduler.SkipReason, len(values))
	for id, reason := range values {
		out[id] = reason
	}
	return out
}

func cloneRuns(values map[string]StageRun) map[string]StageRun {
	if len(values) == 0 {
		return map[string]StageRun{}
	}
	out := make(map[string]StageRun, len(values))
	for id, run := range values {
		out[id] = run
	}
	return out
}

func mergeRuns(existing map[string]StageRun, updates []StageUpdate, clock func() time.Time) map[string]StageRun {
	result := cloneRuns(existing)
	if len(updates) == 0 {
		return result
	}
	for _, update := range updates {
		if update.ID == "" {
			continue
		}
		status := update.Result.Status
		if status == "" {
			if update.Err != nil {
				status = pipeline.StatusFailed
			} else {
				status = pipeline.StatusCompleted
			}
		}
		finished := update.FinishedAt
		if finished.IsZero() {
			finished = clock()
		}
		record := StageRun{
			Status:     status,
			Message:    update.Result.Message,
			Error:      errorString(update.Err),
			Metrics:    cloneMetrics(update.Result.Metrics),
			StartedAt:  update.StartedAt,
			FinishedAt: finished,
		}
		result[update.ID] = record
	}
	return result
}

func applyRuntimeOverrides(base Runtime, overrides *RuntimeOverrides) Runtime {
	if overrides == nil {
		return base
	}
	if overrides.Targets != nil {
		base.Targets = cloneStrings(*overrides.Targets)
	}
	if overrides.BatchSize != nil {
		base.BatchSize = *overrides.BatchSize
	}
	if overrides.MaxParallel != nil {
		base.MaxParallel = *overrides.MaxParallel
	}
	if overrides.Running != nil {
		base.Running = cloneStrings(*overrides.Running)
	}
	if overrides.Gates != nil {
		base.Gates = cloneGates(*overrides.Gates)
	}
	return base
}

func newRunID(pipelineID string, now time.Time) string {
	base := strings.TrimSpace(pipelineID)
	if base == "" {
		base = "pipeline"
	}
	base = strings.ToLower(strings.ReplaceAll(base, " ", "-"))
	suffix, err := gonanoid.New(10)
	if err != nil {
		suffix = fmt.Sprintf("%d", now.UnixNano())
	}
	return fmt.Sprintf("%s-%s", base, suffix)
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) emit(event events.Event) {
	if e.sink == nil {
		return
	}
	_ = e.sink.HandleEvent(event)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
