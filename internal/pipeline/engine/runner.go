package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/amesworks/groundwork/internal/logbook"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/pipeline/events"
	"github.com/amesworks/groundwork/internal/pipeline/resolver"
	"github.com/amesworks/groundwork/internal/pipeline/scheduler"
)

// RunRequest drives a pipeline until it completes, blocks, or fails.
type RunRequest struct {
	Definition pipeline.Definition
	Runtime    *RuntimeOverrides
	// Resume continues the persisted run instead of starting a fresh one.
	Resume bool
}

// Run executes the pipeline batch by batch. Each iteration claims the
// runnable stages, executes them concurrently, merges the results, and
// re-evaluates the graph. The loop stops when the engine reports anything
// other than running, when nothing is claimable, or when ctx is canceled.
func (e *Engine) Run(ctx context.Context, pctx *pipeline.Context, req RunRequest) (State, error) {
	if pctx == nil {
		return State{}, fmt.Errorf("pipeline engine: stage context is required")
	}
	var state State
	var err error
	if req.Resume {
		state, err = e.Resume(pctx, ResumeRequest{Runtime: req.Runtime})
	} else {
		state, err = e.Start(pctx, StartRequest{Definition: req.Definition, Runtime: req.Runtime})
	}
	if err != nil {
		return State{}, err
	}
	e.beginHistory(pctx, state)
	e.emit(events.Event{Type: events.TypeRunStarted, RunID: state.RunID, Message: state.PipelineID, At: e.now()})
	pctx.Log(logbook.LevelInfo, "run %s started for pipeline %s", state.RunID, state.PipelineID)

	for state.Status == RunStatusRunning && len(state.Runnable) > 0 {
		select {
		case <-ctx.Done():
			state = e.forceBlocked(state, "run canceled")
			e.finishHistory(pctx, state)
			e.emit(events.Event{Type: events.TypeRunBlocked, RunID: state.RunID, Message: state.StatusReason, At: e.now()})
			return state, ctx.Err()
		default:
		}
		claim, claimErr := e.Claim(pctx, ClaimRequest{})
		if claimErr != nil {
			return state, claimErr
		}
		state = claim.State
		if len(claim.Claims) == 0 {
			break
		}
		results, runErr := e.runBatch(pctx, state, claim.Claims)
		if runErr != nil {
			return state, runErr
		}
		state, err = e.Update(pctx, UpdateRequest{Results: results})
		if err != nil {
			return state, err
		}
	}

	if state.Status == RunStatusRunning {
		// Ready stages remain but none were claimable (approval gates).
		state = e.forceBlocked(state, blockReason(state))
	}
	e.finishHistory(pctx, state)
	switch state.Status {
	case RunStatusBlocked:
		e.emit(events.Event{Type: events.TypeRunBlocked, RunID: state.RunID, Message: state.StatusReason, At: e.now()})
		pctx.Log(logbook.LevelWarn, "run %s blocked: %s", state.RunID, state.StatusReason)
	case RunStatusError:
		e.emit(events.Event{Type: events.TypeRunFinished, RunID: state.RunID, Message: state.StatusReason, At: e.now()})
		pctx.Log(logbook.LevelError, "run %s failed: %s", state.RunID, state.StatusReason)
	default:
		e.emit(events.Event{Type: events.TypeRunFinished, RunID: state.RunID, Message: string(state.Status), At: e.now()})
		pctx.Log(logbook.LevelInfo, "run %s finished: %s", state.RunID, state.Status)
	}
	return state, nil
}

// runBatch executes claimed stages concurrently and reports their results.
func (e *Engine) runBatch(pctx *pipeline.Context, state State, claims []WorkClaim) ([]StageUpdate, error) {
	res, err := resolver.New(state.Definition, e.registry)
	if err != nil {
		return nil, err
	}
	updates := make(chan StageUpdate, len(claims))
	var wg sync.WaitGroup
	for _, claim := range claims {
		node, ok := res.Node(claim.ID)
		if !ok {
			updates <- StageUpdate{
				ID:  claim.ID,
				Err: fmt.Errorf("pipeline engine: claimed stage %s not in definition", claim.ID),
			}
			continue
		}
		e.emit(events.Event{Type: events.TypeStageStarted, RunID: state.RunID, StageID: claim.ID, Message: claim.Name, At: e.now()})
		pctx.Log(logbook.LevelInfo, "stage %s started", claim.ID)
		wg.Add(1)
		go func(id string, stage pipeline.Stage) {
			defer wg.Done()
			started := e.now()
			result, runErr := stage.Run(pctx)
			updates <- StageUpdate{
				ID:         id,
				Result:     result,
				Err:        runErr,
				StartedAt:  started,
				FinishedAt: e.now(),
			}
		}(claim.ID, node.Stage)
	}
	wg.Wait()
	close(updates)

	results := make([]StageUpdate, 0, len(claims))
	for update := range updates {
		e.reportStage(pctx, state.RunID, update)
		results = append(results, update)
	}
	return results, nil
}

func (e *Engine) reportStage(pctx *pipeline.Context, runID string, update StageUpdate) {
	status := update.Result.Status
	if status == "" {
		if update.Err != nil {
			status = pipeline.StatusFailed
		} else {
			status = pipeline.StatusCompleted
		}
	}
	message := update.Result.Message
	if update.Err != nil && message == "" {
		message = update.Err.Error()
	}
	switch {
	case update.Err != nil || status == pipeline.StatusFailed:
		e.emit(events.Event{Type: events.TypeStageFailed, RunID: runID, StageID: update.ID, Message: message, At: e.now()})
		pctx.Log(logbook.LevelError, "stage %s failed: %s", update.ID, message)
	case status == pipeline.StatusNeedsInput:
		e.emit(events.Event{Type: events.TypeStageSkipped, RunID: runID, StageID: update.ID, Message: message, At: e.now()})
		pctx.Log(logbook.LevelWarn, "stage %s needs input: %s", update.ID, message)
	default:
		e.emit(events.Event{Type: events.TypeStageFinished, RunID: runID, StageID: update.ID, Message: message, At: e.now()})
		pctx.Log(logbook.LevelInfo, "stage %s finished: %s", update.ID, message)
	}
	if e.recorder != nil {
		err := e.recorder.RecordStage(runID, update.ID, string(status), message, update.Result.Metrics, update.StartedAt, update.FinishedAt)
		if err != nil {
			pctx.Log(logbook.LevelWarn, "history: record stage %s: %v", update.ID, err)
		}
	}
}

func (e *Engine) beginHistory(pctx *pipeline.Context, state State) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.BeginRun(state.RunID, state.PipelineID, state.StartedAt); err != nil {
		pctx.Log(logbook.LevelWarn, "history: begin run %s: %v", state.RunID, err)
	}
}

func (e *Engine) finishHistory(pctx *pipeline.Context, state State) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.FinishRun(state.RunID, string(state.Status), e.now()); err != nil {
		pctx.Log(logbook.LevelWarn, "history: finish run %s: %v", state.RunID, err)
	}
}

// forceBlocked persists a blocked status without recomputing the graph.
func (e *Engine) forceBlocked(state State, reason string) State {
	state.Status = RunStatusBlocked
	state.StatusReason = reason
	state.UpdatedAt = e.now()
	if err := e.repo.Save(state); err != nil {
		state.StatusReason = fmt.Sprintf("%s (state not persisted: %v)", reason, err)
	}
	return state
}

// blockReason summarizes why no runnable stage could be claimed.
func blockReason(state State) string {
	if len(state.Skipped) == 0 {
		return "no runnable stages"
	}
	ids := make([]string, 0, len(state.Skipped))
	for id := range state.Skipped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		reason := state.Skipped[id]
		if reason.Reason == scheduler.SkipReasonGate {
			return fmt.Sprintf("%s %s", id, reason.Detail)
		}
	}
	first := state.Skipped[ids[0]]
	return fmt.Sprintf("%s %s", ids[0], first.Detail)
}
