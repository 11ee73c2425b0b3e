package engine

import (
	"fmt"

	"github.com/amesworks/groundwork/internal/pipeline"
)

// ClaimRequest asks the engine to reserve runnable stages for execution.
type ClaimRequest struct {
	Runtime *RuntimeOverrides
	// Limit caps how many runnable stages may be claimed at once. Zero means "all".
	Limit int
	// Stages restricts claims to a subset of runnable stage IDs. When empty,
	// every runnable stage is eligible.
	Stages []string
}

// WorkClaim describes a runnable stage that has been reserved for execution.
type WorkClaim struct {
	ID          string                      `json:"id"`
	StageID     string                      `json:"stage_id"`
	Name        string                      `json:"name"`
	Description string                      `json:"description,omitempty"`
	Optional    bool                        `json:"optional,omitempty"`
	Concurrency pipeline.ConcurrencyProfile `json:"concurrency"`
}

// ClaimResult returns the new engine state plus the reserved stages.
type ClaimResult struct {
	Claims []WorkClaim
	State  State
}

// Claim reserves runnable stages, marks them as running, and persists the new
// engine snapshot so concurrent observers see the updated runtime state.
func (e *Engine) Claim(ctx *pipeline.Context, req ClaimRequest) (ClaimResult, error) {
	if ctx == nil {
		return ClaimResult{}, fmt.Errorf("pipeline engine: stage context is required")
	}
	current, err := e.repo.Load()
	if err != nil {
		return ClaimResult{}, err
	}
	runtime := applyRuntimeOverrides(current.Runtime, req.Runtime)
	state, err := e.buildState(ctx, current.Definition, runtime, current.Runs)
	if err != nil {
		return ClaimResult{}, err
	}
	state.RunID = current.RunID
	state.PipelineID = current.PipelineID
	state.StartedAt = current.StartedAt
	runnable := filterClaimable(state.Runnable, req.Stages)
	limit := len(runnable)
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}
	claimIDs := make([]string, limit)
	copy(claimIDs, runnable[:limit])
	claims := make([]WorkClaim, 0, len(claimIDs))
	for _, id := range claimIDs {
		status, ok := findStageStatus(state.Nodes, id)
		if !ok {
			continue
		}
		claims = append(claims, WorkClaim{
			ID:          status.ID,
			StageID:     status.StageID,
			Name:        status.Name,
			Description: status.Description,
			Optional:    status.Optional,
			Concurrency: status.Concurrency,
		})
	}
	state.Runtime.Running = appendRunning(state.Runtime.Running, claimIDs)
	state.Runnable = stripIDs(state.Runnable, claimIDs)
	state.Status, state.StatusReason = deriveRunStatus(state.Nodes, state.Runtime, state.Runs)
	state.UpdatedAt = e.now()
	if err := e.repo.Save(state); err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Claims: claims, State: state}, nil
}

func findStageStatus(nodes []StageStatus, id string) (StageStatus, bool) {
	for _, node := range nodes {
		if node.ID == id {
			return node, true
		}
	}
	return StageStatus{}, false
}
