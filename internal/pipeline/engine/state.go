package engine

import (
	"time"

	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/pipeline/resolver"
	"github.com/amesworks/groundwork/internal/pipeline/scheduler"
)

// RunStatus enumerates coarse pipeline engine phases.
type RunStatus string

const (
	RunStatusUnknown  RunStatus = "unknown"
	RunStatusRunning  RunStatus = "running"
	RunStatusBlocked  RunStatus = "blocked"
	RunStatusComplete RunStatus = "complete"
	RunStatusError    RunStatus = "error"
)

// State captures the persisted snapshot of a pipeline run.
type State struct {
	RunID      string              `json:"run_id"`
	PipelineID string              `json:"pipeline_id"`
	Definition pipeline.Definition `json:"definition"`
	Status     RunStatus           `json:"status"`
	// StatusReason provides a human readable explanation for non-running states.
	StatusReason string                          `json:"status_reason,omitempty"`
	Runtime      Runtime                         `json:"runtime"`
	Nodes        []StageStatus                   `json:"nodes"`
	Runnable     []string                        `json:"runnable"`
	Skipped      map[string]scheduler.SkipReason `json:"skipped,omitempty"`
	Runs         map[string]StageRun             `json:"runs,omitempty"`
	StartedAt    time.Time                       `json:"started_at"`
	UpdatedAt    time.Time                       `json:"updated_at"`
}

// Runtime mirrors scheduler constraints that survive across updates.
type Runtime struct {
	Targets     []string                       `json:"targets,omitempty"`
	BatchSize   int                            `json:"batch_size,omitempty"`
	MaxParallel int                            `json:"max_parallel,omitempty"`
	Running     []string                       `json:"running,omitempty"`
	Gates       map[string]scheduler.GateState `json:"gates,omitempty"`
}

// RuntimeOverrides selectively mutates Runtime fields.
type RuntimeOverrides struct {
	Targets     *[]string
	BatchSize   *int
	MaxParallel *int
	Running     *[]string
	Gates       *map[string]scheduler.GateState
}

// StageStatus exposes resolver metadata for a pipeline node.
type StageStatus struct {
	ID           string                      `json:"id"`
	StageID      string                      `json:"stage_id"`
	Name         string                      `json:"name"`
	Description  string                      `json:"description,omitempty"`
	Optional     bool                        `json:"optional,omitempty"`
	Concurrency  pipeline.ConcurrencyProfile `json:"concurrency"`
	State        resolver.NodeState          `json:"state"`
	Dependencies []string                    `json:"dependencies,omitempty"`
	Dependents   []string                    `json:"dependents,omitempty"`
	BlockedBy    []string                    `json:"blocked_by,omitempty"`
	Error        string                      `json:"error,omitempty"`
	Artifacts    map[string]ArtifactStatus   `json:"artifacts,omitempty"`
	LastRun      *StageRun                   `json:"last_run,omitempty"`
}

// ArtifactStatus mirrors resolver artifact evaluation for UI/state consumers.
type ArtifactStatus struct {
	ID                  string                  `json:"id"`
	Status              pipeline.ArtifactStatus `json:"status"`
	ExpectedFingerprint string                  `json:"expected_fingerprint,omitempty"`
	StoredFingerprint   string                  `json:"stored_fingerprint,omitempty"`
	Error               string                  `json:"error,omitempty"`
}

// StageRun persists the last known runtime result for a stage execution.
type StageRun struct {
	Status     pipeline.Status `json:"status"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Metrics    map[string]int  `json:"metrics,omitempty"`
	StartedAt  time.Time       `json:"started_at,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// schedulerRequest converts Runtime into a scheduler request payload.
func (rt Runtime) schedulerRequest() scheduler.RunnableRequest {
	return scheduler.RunnableRequest{
		Targets:     cloneStrings(rt.Targets),
		BatchSize:   rt.BatchSize,
		MaxParallel: rt.MaxParallel,
		Running:     cloneStrings(rt.Running),
		Gates:       cloneGates(rt.Gates),
	}
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneGates(values map[string]scheduler.GateState) map[string]scheduler.GateState {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]scheduler.GateState, len(values))
	for id, state := range values {
		out[id] = state
	}
	return out
}

func cloneMetrics(values map[string]int) map[string]int {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]int, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

func (rt Runtime) clone() Runtime {
	return Runtime{
		Targets:     cloneStrings(rt.Targets),
		BatchSize:   rt.BatchSize,
		MaxParallel: rt.MaxParallel,
		Running:     cloneStrings(rt.Running),
		Gates:       cloneGates(rt.Gates),
	}
}
